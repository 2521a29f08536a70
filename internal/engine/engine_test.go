package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/aromabot/internal/domain"
)

type fakeStore struct {
	profiles        map[int64]*domain.Profile
	feedback        []domain.FeedbackRecord
	support         []domain.SupportRequest
	recommendations []domain.Recommendation
	userIDs         []int64
	stats           domain.FeedbackStats

	failSetLocation bool
	failFeedback    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{profiles: make(map[int64]*domain.Profile)}
}

func (s *fakeStore) profile(userID int64) *domain.Profile {
	p, ok := s.profiles[userID]
	if !ok {
		p = &domain.Profile{UserID: userID}
		s.profiles[userID] = p
	}
	return p
}

func (s *fakeStore) EnsureUser(_ context.Context, userID int64) error {
	s.profile(userID)
	return nil
}

func (s *fakeStore) Profile(_ context.Context, userID int64) (domain.Profile, error) {
	return *s.profile(userID), nil
}

func (s *fakeStore) SetAge(_ context.Context, userID int64, age string) error {
	s.profile(userID).Age = age
	return nil
}

func (s *fakeStore) SetGender(_ context.Context, userID int64, gender string) error {
	s.profile(userID).Gender = gender
	return nil
}

func (s *fakeStore) SetCategories(_ context.Context, userID int64, categories []string) error {
	s.profile(userID).Categories = append([]string(nil), categories...)
	return nil
}

func (s *fakeStore) SetLocation(_ context.Context, userID int64, location string) error {
	if s.failSetLocation {
		return errors.New("db down")
	}
	s.profile(userID).Location = location
	return nil
}

func (s *fakeStore) AddFeedback(_ context.Context, userID int64, score int) error {
	if s.failFeedback {
		return errors.New("db down")
	}
	s.feedback = append(s.feedback, domain.FeedbackRecord{UserID: userID, Score: score})
	return nil
}

func (s *fakeStore) AddSupportRequest(_ context.Context, userID int64, message, photoID string) error {
	s.support = append(s.support, domain.SupportRequest{UserID: userID, Message: message, PhotoID: photoID})
	return nil
}

func (s *fakeStore) AddRecommendation(_ context.Context, userID int64, text string) error {
	s.recommendations = append(s.recommendations, domain.Recommendation{UserID: userID, Text: text})
	return nil
}

func (s *fakeStore) UserIDs(_ context.Context) ([]int64, error) {
	return s.userIDs, nil
}

func (s *fakeStore) Stats(_ context.Context) (domain.FeedbackStats, error) {
	return s.stats, nil
}

func (s *fakeStore) SupportRequests(_ context.Context, limit int) ([]domain.SupportRequest, error) {
	if len(s.support) > limit {
		return s.support[:limit], nil
	}
	return s.support, nil
}

type fakeGenerator struct {
	reply     string
	err       error
	lastQuery string
	calls     int
}

func (g *fakeGenerator) Recommend(_ context.Context, _ domain.Profile, query string) (string, error) {
	g.calls++
	g.lastQuery = query
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Notify(_ context.Context, text string) {
	n.messages = append(n.messages, text)
}

type fakeBroadcaster struct {
	lastText       string
	lastRecipients []int64
	sent, total    int
}

func (b *fakeBroadcaster) Dispatch(_ context.Context, text string, recipients []int64) (int, int) {
	b.lastText = text
	b.lastRecipients = recipients
	return b.sent, b.total
}

type fixture struct {
	engine      *Engine
	store       *fakeStore
	gen         *fakeGenerator
	notifier    *fakeNotifier
	broadcaster *fakeBroadcaster
}

const operatorID int64 = 99

func newFixture() *fixture {
	store := newFakeStore()
	gen := &fakeGenerator{reply: "Советую Dior Homme."}
	notifier := &fakeNotifier{}
	broadcaster := &fakeBroadcaster{}
	eng := New(store, gen, notifier, broadcaster, func(id int64) bool { return id == operatorID })
	return &fixture{engine: eng, store: store, gen: gen, notifier: notifier, broadcaster: broadcaster}
}

func allText(actions []Action) string {
	parts := make([]string, 0, len(actions))
	for _, a := range actions {
		parts = append(parts, a.Text)
	}
	return strings.Join(parts, "\n")
}

func lastMenu(actions []Action) *Menu {
	for i := len(actions) - 1; i >= 0; i-- {
		if actions[i].Menu != nil {
			return actions[i].Menu
		}
	}
	return nil
}

func menuKeys(m *Menu) []string {
	var keys []string
	for _, row := range m.Rows {
		for _, b := range row {
			keys = append(keys, b.Key)
		}
	}
	return keys
}

func TestStartGreetsAndRegisters(t *testing.T) {
	f := newFixture()
	actions := f.engine.Start(context.Background(), 1, "Анна")

	require.Len(t, actions, 2)
	require.Contains(t, actions[0].Text, "Анна")
	require.NotNil(t, actions[1].Menu)
	_, ok := f.store.profiles[1]
	require.True(t, ok, "first contact must create an empty profile")
}

func TestMainMenuHidesAdminEntry(t *testing.T) {
	f := newFixture()

	actions := f.engine.Start(context.Background(), 1, "Анна")
	require.NotContains(t, allButtonPayloads(lastMenu(actions)), MenuAdmin)

	actions = f.engine.Start(context.Background(), operatorID, "Оператор")
	require.Contains(t, allButtonPayloads(lastMenu(actions)), MenuAdmin)
}

func allButtonPayloads(m *Menu) []string {
	var payloads []string
	for _, row := range m.Rows {
		for _, b := range row {
			payloads = append(payloads, b.Payload)
		}
	}
	return payloads
}

func TestSurveyHappyPath(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	var userID int64 = 1

	st, acc, actions := f.engine.Handle(ctx, userID, SelectionEvent(SelectMenu, MenuSurvey), StateRoot, Accumulated{})
	require.Equal(t, StateAwaitingAge, st)
	require.Contains(t, menuKeys(lastMenu(actions)), SelectAge)

	st, acc, actions = f.engine.Handle(ctx, userID, SelectionEvent(SelectAge, "25-34"), st, acc)
	require.Equal(t, StateAwaitingGender, st)
	require.Equal(t, "25-34", f.store.profiles[userID].Age)
	require.Contains(t, allText(actions), "Вы выбрали возраст: 25-34")
	require.Contains(t, menuKeys(lastMenu(actions)), SelectGender)

	st, acc, _ = f.engine.Handle(ctx, userID, SelectionEvent(SelectGender, "Женский"), st, acc)
	require.Equal(t, StateAwaitingCategories, st)
	require.Equal(t, "Женский", f.store.profiles[userID].Gender)

	for i, cat := range []string{"Цветочные", "Древесные", "Цитрусовые"} {
		st, acc, actions = f.engine.Handle(ctx, userID, SelectionEvent(SelectCategory, cat), st, acc)
		if i < 2 {
			require.Equal(t, StateAwaitingCategories, st)
		}
	}
	require.Equal(t, StateAwaitingLocation, st)
	require.Equal(t, []string{"Цветочные", "Древесные", "Цитрусовые"}, f.store.profiles[userID].Categories)

	st, _, actions = f.engine.Handle(ctx, userID, SelectionEvent(SelectLocation, "Казань"), st, acc)
	require.Equal(t, StateAwaitingFeedback, st)
	require.Equal(t, "Казань", f.store.profiles[userID].Location)
	require.Contains(t, allText(actions), "Советую Dior Homme.")
	require.Contains(t, menuKeys(lastMenu(actions)), SelectFeedback)
	require.Len(t, f.store.recommendations, 1)
}

func TestCategoriesDeduplicatedAndCapped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	st, acc := StateAwaitingCategories, Accumulated{}

	st, acc, _ = f.engine.Handle(ctx, 1, SelectionEvent(SelectCategory, "Цветочные"), st, acc)
	st, acc, actions := f.engine.Handle(ctx, 1, SelectionEvent(SelectCategory, "Цветочные"), st, acc)

	require.Equal(t, StateAwaitingCategories, st)
	require.Equal(t, []string{"Цветочные"}, acc.Categories, "duplicate pick must not append")
	require.Contains(t, allText(actions), "Можете выбрать еще")

	st, acc, _ = f.engine.Handle(ctx, 1, SelectionEvent(SelectCategory, "Древесные"), st, acc)
	st, acc, _ = f.engine.Handle(ctx, 1, SelectionEvent(SelectCategory, "Пряные"), st, acc)
	require.Equal(t, StateAwaitingLocation, st)
	require.Len(t, acc.Categories, 3)
}

func TestCategoryPagingDoesNotMutatePicks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	acc := Accumulated{Categories: []string{"Цветочные"}}

	st, acc, actions := f.engine.Handle(ctx, 1, SelectionEvent(SelectCategoryPage, "1"), StateAwaitingCategories, acc)
	require.Equal(t, StateAwaitingCategories, st)
	require.Equal(t, []string{"Цветочные"}, acc.Categories)
	require.Equal(t, 1, acc.CategoryPage)

	// page 1 renders the second catalog page
	m := lastMenu(actions)
	require.Contains(t, allButtonPayloads(m), "Шипровые")
}

func TestUnlistedCategoryRejected(t *testing.T) {
	f := newFixture()
	st, acc, _ := f.engine.Handle(context.Background(), 1, SelectionEvent(SelectCategory, "Несуществующие"), StateAwaitingCategories, Accumulated{})
	require.Equal(t, StateAwaitingCategories, st)
	require.Empty(t, acc.Categories)
}

func TestCustomLocationPath(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	st, acc, actions := f.engine.Handle(ctx, 1, SelectionEvent(SelectLocationOther, ""), StateAwaitingLocation, Accumulated{})
	require.Equal(t, StateAwaitingCustomLocation, st)
	require.Contains(t, allText(actions), "введите название вашего города")

	st, _, actions = f.engine.Handle(ctx, 1, TextEvent("Таганрог"), st, acc)
	require.Equal(t, StateAwaitingFeedback, st)
	require.Equal(t, "Таганрог", f.store.profiles[1].Location)
	require.Contains(t, allText(actions), "Вы ввели город: Таганрог")
}

func TestExactlyOneLocationPersisted(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	// listed pick persists and finalizes; no second write happens
	st, _, _ := f.engine.Handle(ctx, 1, SelectionEvent(SelectLocation, "Москва"), StateAwaitingLocation, Accumulated{})
	require.Equal(t, StateAwaitingFeedback, st)
	require.Equal(t, "Москва", f.store.profiles[1].Location)
}

func TestGenerationFailureYieldsFallback(t *testing.T) {
	f := newFixture()
	f.gen.err = errors.New("quota exceeded")

	st, _, actions := f.engine.Handle(context.Background(), 1, SelectionEvent(SelectLocation, "Москва"), StateAwaitingLocation, Accumulated{})
	require.Equal(t, StateAwaitingFeedback, st, "generation failure must not derail the session")
	require.Contains(t, allText(actions), FallbackText)
	require.Empty(t, f.store.recommendations, "failed generations are not logged")
}

func TestLocationStoreFailureKeepsState(t *testing.T) {
	f := newFixture()
	f.store.failSetLocation = true

	st, _, actions := f.engine.Handle(context.Background(), 1, SelectionEvent(SelectLocation, "Москва"), StateAwaitingLocation, Accumulated{})
	require.Equal(t, StateAwaitingLocation, st)
	require.Contains(t, allText(actions), "попробуйте еще раз")
	require.Zero(t, f.gen.calls, "generation must not run when the profile write failed")
}

func TestFeedbackScoreRecorded(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	st, _, actions := f.engine.Handle(ctx, 1, SelectionEvent(SelectFeedback, "4"), StateAwaitingFeedback, Accumulated{})
	require.Equal(t, StateRoot, st)
	require.Contains(t, allText(actions), "Спасибо за вашу оценку: 4!")

	// a second submission appends, never overwrites
	_, _, _ = f.engine.Handle(ctx, 1, SelectionEvent(SelectFeedback, "4"), StateAwaitingFeedback, Accumulated{})
	require.Len(t, f.store.feedback, 2)
	require.Equal(t, 4, f.store.feedback[0].Score)
	require.Equal(t, 4, f.store.feedback[1].Score)
}

func TestFeedbackInvalidScoreReprompts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, payload := range []string{"0", "6", "abc", ""} {
		st, _, actions := f.engine.Handle(ctx, 1, SelectionEvent(SelectFeedback, payload), StateAwaitingFeedback, Accumulated{})
		require.Equal(t, StateAwaitingFeedback, st, "payload %q", payload)
		require.Contains(t, allText(actions), "оцените качество")
	}
	st, _, _ := f.engine.Handle(ctx, 1, TextEvent("отлично"), StateAwaitingFeedback, Accumulated{})
	require.Equal(t, StateAwaitingFeedback, st)
	require.Empty(t, f.store.feedback)
}

func TestSupportTextFlow(t *testing.T) {
	f := newFixture()

	st, _, actions := f.engine.Handle(context.Background(), 5, TextEvent("не приходит заказ"), StateAwaitingSupportMessage, Accumulated{})
	require.Equal(t, StateRoot, st)
	require.Contains(t, allText(actions), "Спасибо за ваше сообщение!")

	require.Len(t, f.store.support, 1)
	require.Equal(t, "не приходит заказ", f.store.support[0].Message)
	require.Empty(t, f.store.support[0].PhotoID)

	require.Len(t, f.notifier.messages, 1)
	require.Contains(t, f.notifier.messages[0], "пользователя 5")
	require.Contains(t, f.notifier.messages[0], "не приходит заказ")
}

func TestSupportPhotoThenCaption(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	st, acc, actions := f.engine.Handle(ctx, 5, PhotoEvent("file-abc"), StateAwaitingSupportMessage, Accumulated{})
	require.Equal(t, StateAwaitingSupportPhotoCaption, st)
	require.Equal(t, "file-abc", acc.PhotoID)
	require.Contains(t, allText(actions), "добавьте описание")

	st, _, _ = f.engine.Handle(ctx, 5, TextEvent("it's broken"), st, acc)
	require.Equal(t, StateRoot, st)

	require.Len(t, f.store.support, 1)
	require.Equal(t, "it's broken", f.store.support[0].Message)
	require.Equal(t, "file-abc", f.store.support[0].PhotoID)
	require.Len(t, f.notifier.messages, 1, "exactly one operator notification")
}

func TestSupportCaptionWithoutPhotoErrors(t *testing.T) {
	f := newFixture()

	st, _, actions := f.engine.Handle(context.Background(), 5, TextEvent("подпись"), StateAwaitingSupportPhotoCaption, Accumulated{})
	require.Equal(t, StateAwaitingSupportPhotoCaption, st)
	require.Contains(t, allText(actions), "попробуйте еще раз")
	require.Empty(t, f.store.support)
}

func TestSupportUnsupportedEventReprompts(t *testing.T) {
	f := newFixture()

	st, _, actions := f.engine.Handle(context.Background(), 5, Event{Kind: EventSelection, Key: SelectMenu}, StateAwaitingSupportMessage, Accumulated{})
	require.Equal(t, StateAwaitingSupportMessage, st)
	require.Contains(t, allText(actions), "текстовое сообщение или фото")
}

func TestRootChatFallback(t *testing.T) {
	f := newFixture()
	f.store.profile(1).Age = "25-34"

	st, _, actions := f.engine.Handle(context.Background(), 1, TextEvent("что подарить маме?"), StateRoot, Accumulated{})
	require.Equal(t, StateAwaitingFeedback, st)
	require.Equal(t, "что подарить маме?", f.gen.lastQuery)
	require.Contains(t, allText(actions), "Советую Dior Homme.")
	require.Contains(t, menuKeys(lastMenu(actions)), SelectFeedback)
}

func TestAdminPanelRejectedForNonOperator(t *testing.T) {
	f := newFixture()

	st, _, actions := f.engine.Handle(context.Background(), 1, SelectionEvent(SelectMenu, MenuAdmin), StateRoot, Accumulated{})
	require.Equal(t, StateRoot, st, "no state transition on rejection")
	require.Contains(t, allText(actions), "нет прав")
	require.Nil(t, lastMenu(actions))
}

func TestAdminActionRejectedForNonOperator(t *testing.T) {
	f := newFixture()

	st, actions := f.engine.AdminAction(context.Background(), 1, AdminBroadcast, StateRoot)
	require.Equal(t, StateRoot, st)
	require.Contains(t, allText(actions), "нет прав")
	require.Empty(t, f.broadcaster.lastText)
}

func TestAdminBroadcastFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.userIDs = []int64{1, 2, 3}
	f.broadcaster.sent, f.broadcaster.total = 2, 3

	st, actions := f.engine.AdminAction(ctx, operatorID, AdminBroadcast, StateRoot)
	require.Equal(t, StateAwaitingAdminBroadcastText, st)
	require.Contains(t, allText(actions), "Введите сообщение для рассылки")

	st, _, actions = f.engine.Handle(ctx, operatorID, TextEvent("Скидки 20%!"), st, Accumulated{})
	require.Equal(t, StateRoot, st)
	require.Equal(t, "Скидки 20%!", f.broadcaster.lastText)
	require.Equal(t, []int64{1, 2, 3}, f.broadcaster.lastRecipients)
	require.Contains(t, allText(actions), "Отправлено 2 из 3 пользователей")
}

func TestAdminStatsView(t *testing.T) {
	f := newFixture()
	f.store.stats = domain.FeedbackStats{Users: 5, Responses: 2, AverageScore: 4.5, Recommended: 9}

	st, actions := f.engine.AdminAction(context.Background(), operatorID, AdminStats, StateRoot)
	require.Equal(t, StateRoot, st, "stats view is stateless")
	require.Contains(t, allText(actions), "Всего пользователей: 5")
}

func TestAdminSupportView(t *testing.T) {
	f := newFixture()
	for i := 0; i < 12; i++ {
		f.store.support = append(f.store.support, domain.SupportRequest{
			UserID:  int64(i),
			Message: fmt.Sprintf("запрос %d", i),
		})
	}

	st, actions := f.engine.AdminAction(context.Background(), operatorID, AdminSupport, StateRoot)
	require.Equal(t, StateRoot, st)
	require.Contains(t, allText(actions), "запрос 0")
	require.NotContains(t, allText(actions), "запрос 11", "view is capped at ten requests")
}

func TestUnknownStateResetsToRoot(t *testing.T) {
	f := newFixture()

	st, acc, actions := f.engine.Handle(context.Background(), 1, TextEvent("hi"), State("legacy"), Accumulated{PhotoID: "x"})
	require.Equal(t, StateRoot, st)
	require.Empty(t, acc.PhotoID)
	require.NotNil(t, lastMenu(actions))
}
