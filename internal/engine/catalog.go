package engine

import "strconv"

// Survey answer catalogs. Order matters: menus render in this order
// and pages are addressed by index.
var (
	AgeRanges = []string{"18-24", "25-34", "35-44", "45-54", "55+"}

	Genders = []string{"Мужской", "Женский", "Другой"}

	CategoryPages = [][]string{
		{"Цветочные", "Древесные", "Цитрусовые", "Восточные", "Фужерные"},
		{"Шипровые", "Кожаные", "Гурманские", "Акватические", "Зеленые"},
		{"Пряные", "Фруктовые", "Альдегидные", "Мускусные", "Табачные"},
	}

	LocationPages = [][]string{
		{"Москва", "Санкт-Петербург", "Новосибирск", "Екатеринбург", "Казань"},
		{"Нижний Новгород", "Челябинск", "Самара", "Омск", "Ростов-на-Дону"},
		{"Уфа", "Красноярск", "Воронеж", "Пермь", "Волгоград"},
	}
)

// maxCategories is the number of category picks that completes the step.
const maxCategories = 3

const nextPageLabel = "Следующая страница"

func validAge(v string) bool {
	for _, a := range AgeRanges {
		if a == v {
			return true
		}
	}
	return false
}

func validGender(v string) bool {
	for _, g := range Genders {
		if g == v {
			return true
		}
	}
	return false
}

func categoryListed(v string) bool {
	for _, page := range CategoryPages {
		for _, c := range page {
			if c == v {
				return true
			}
		}
	}
	return false
}

func locationListed(v string) bool {
	for _, page := range LocationPages {
		for _, l := range page {
			if l == v {
				return true
			}
		}
	}
	return false
}

// MainMenu is the root action menu. Operators additionally see the
// admin panel entry.
func MainMenu(operator bool) *Menu {
	buttons := []Button{
		{Label: "Подобрать парфюм", Key: SelectMenu, Payload: MenuSurvey},
		{Label: "Поддержка", Key: SelectMenu, Payload: MenuSupport},
	}
	if operator {
		buttons = append(buttons, Button{Label: "Админ панель", Key: SelectMenu, Payload: MenuAdmin})
	}
	return &Menu{Rows: chunk(buttons, 1)}
}

// AdminMenu lists privileged operations.
func AdminMenu() *Menu {
	buttons := []Button{
		{Label: "Рассылка", Key: SelectAdmin, Payload: AdminBroadcast},
		{Label: "Статистика", Key: SelectAdmin, Payload: AdminStats},
		{Label: "Обращения в поддержку", Key: SelectAdmin, Payload: AdminSupport},
	}
	return &Menu{Rows: chunk(buttons, 2)}
}

func ageMenu() *Menu {
	buttons := make([]Button, 0, len(AgeRanges))
	for _, a := range AgeRanges {
		buttons = append(buttons, Button{Label: a, Key: SelectAge, Payload: a})
	}
	return &Menu{Rows: chunk(buttons, 2)}
}

func genderMenu() *Menu {
	buttons := make([]Button, 0, len(Genders))
	for _, g := range Genders {
		buttons = append(buttons, Button{Label: g, Key: SelectGender, Payload: g})
	}
	return &Menu{Rows: chunk(buttons, 2)}
}

func categoryMenu(page int) *Menu {
	if page < 0 || page >= len(CategoryPages) {
		page = 0
	}
	buttons := make([]Button, 0, len(CategoryPages[page])+1)
	for _, c := range CategoryPages[page] {
		buttons = append(buttons, Button{Label: c, Key: SelectCategory, Payload: c})
	}
	if page < len(CategoryPages)-1 {
		buttons = append(buttons, Button{
			Label:   nextPageLabel,
			Key:     SelectCategoryPage,
			Payload: strconv.Itoa(page + 1),
		})
	}
	return &Menu{Rows: chunk(buttons, 2)}
}

func locationMenu(page int) *Menu {
	if page < 0 || page >= len(LocationPages) {
		page = 0
	}
	buttons := make([]Button, 0, len(LocationPages[page])+2)
	for _, l := range LocationPages[page] {
		buttons = append(buttons, Button{Label: l, Key: SelectLocation, Payload: l})
	}
	if page < len(LocationPages)-1 {
		buttons = append(buttons, Button{
			Label:   nextPageLabel,
			Key:     SelectLocationPage,
			Payload: strconv.Itoa(page + 1),
		})
	}
	buttons = append(buttons, Button{Label: "Другой город", Key: SelectLocationOther})
	return &Menu{Rows: chunk(buttons, 2)}
}

func feedbackMenu() *Menu {
	buttons := make([]Button, 0, 5)
	for score := 1; score <= 5; score++ {
		s := strconv.Itoa(score)
		buttons = append(buttons, Button{Label: s, Key: SelectFeedback, Payload: s})
	}
	return &Menu{Rows: chunk(buttons, 5)}
}
