// Package engine implements the conversation state machine: it
// interprets one inbound event against the user's current state and
// produces the next state plus outbound actions. The engine holds no
// per-user state of its own; sessions are owned by the session store
// and threaded through Handle.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"log/slog"

	"github.com/m3rciful/aromabot/core/logger"
	"github.com/m3rciful/aromabot/internal/admin"
	"github.com/m3rciful/aromabot/internal/domain"
)

// FallbackText replaces a generated recommendation whenever the
// generation service fails. Generation errors never surface to users.
const FallbackText = "Извините, произошла ошибка при генерации рекомендации. Пожалуйста, попробуйте еще раз позже."

const (
	greetingText       = "Привет, %s! Я ваш персональный консультант по парфюмерии."
	chooseActionText   = "Выберите действие:"
	surveyIntroText    = "Отлично! Давайте подберем для вас идеальный парфюм. Для начала ответьте на несколько вопросов."
	askAgeText         = "Выберите ваш возрастной диапазон:"
	askGenderText      = "Выберите ваш пол:"
	askCategoriesText  = "Выберите предпочитаемые ароматы (можно выбрать несколько):"
	askLocationText    = "Выберите ваше местоположение:"
	askCustomCityText  = "Пожалуйста, введите название вашего города:"
	askFeedbackText    = "Пожалуйста, оцените качество рекомендации от 1 до 5:"
	supportIntroText   = "Пожалуйста, напишите ваш вопрос или отзыв. Вы также можете прикрепить фото, если это необходимо."
	supportThanksText  = "Спасибо за ваше сообщение! Мы обязательно рассмотрим его."
	supportPhotoText   = "Фото получено. Пожалуйста, добавьте описание к фото."
	supportBothText    = "Спасибо за ваше сообщение и фото! Мы обязательно рассмотрим их."
	supportInvalidText = "Пожалуйста, отправьте текстовое сообщение или фото."
	retryText          = "Произошла ошибка. Пожалуйста, попробуйте еще раз."
	noAccessText       = "У вас нет прав для выполнения этой команды."
	noAdminPanelText   = "У вас нет прав для доступа к админ панели."
	broadcastAskText   = "Введите сообщение для рассылки:"
)

// Store is the engine's view of the durable record store. Identities
// and profile fields are encrypted inside the implementation.
type Store interface {
	EnsureUser(ctx context.Context, userID int64) error
	Profile(ctx context.Context, userID int64) (domain.Profile, error)
	SetAge(ctx context.Context, userID int64, age string) error
	SetGender(ctx context.Context, userID int64, gender string) error
	SetCategories(ctx context.Context, userID int64, categories []string) error
	SetLocation(ctx context.Context, userID int64, location string) error
	AddFeedback(ctx context.Context, userID int64, score int) error
	AddSupportRequest(ctx context.Context, userID int64, message, photoID string) error
	AddRecommendation(ctx context.Context, userID int64, text string) error
	UserIDs(ctx context.Context) ([]int64, error)
	Stats(ctx context.Context) (domain.FeedbackStats, error)
	SupportRequests(ctx context.Context, limit int) ([]domain.SupportRequest, error)
}

// Generator produces recommendation text from a profile and an
// optional free-text query.
type Generator interface {
	Recommend(ctx context.Context, profile domain.Profile, query string) (string, error)
}

// Notifier alerts the configured operator set, fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Broadcaster fans one message out to many recipients and reports
// how many deliveries succeeded.
type Broadcaster interface {
	Dispatch(ctx context.Context, text string, recipients []int64) (sent, total int)
}

// Engine wires the state machine to its collaborators.
type Engine struct {
	store       Store
	gen         Generator
	notifier    Notifier
	broadcaster Broadcaster
	isOperator  func(id int64) bool
}

// New constructs an Engine. isOperator gates the admin sub-paths.
func New(store Store, gen Generator, notifier Notifier, broadcaster Broadcaster, isOperator func(int64) bool) *Engine {
	if isOperator == nil {
		isOperator = func(int64) bool { return false }
	}
	return &Engine{
		store:       store,
		gen:         gen,
		notifier:    notifier,
		broadcaster: broadcaster,
		isOperator:  isOperator,
	}
}

// Start registers the user on first contact and returns the greeting
// with the main menu. The conversation lands in StateRoot.
func (e *Engine) Start(ctx context.Context, userID int64, firstName string) []Action {
	if err := e.store.EnsureUser(ctx, userID); err != nil {
		logger.Error(ctx, "engine", "user.ensure",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
	return []Action{
		say(fmt.Sprintf(greetingText, firstName)),
		e.mainMenu(userID),
	}
}

// Handle applies one inbound event to the user's current state. The
// caller must serialize calls per user identity; calls for different
// users are safe concurrently.
func (e *Engine) Handle(ctx context.Context, userID int64, ev Event, st State, acc Accumulated) (State, Accumulated, []Action) {
	next, nextAcc, actions := e.dispatch(ctx, userID, ev, st, acc)
	if next != st {
		logger.Debug(ctx, "engine", "transition",
			slog.Int64("user_id", userID),
			slog.String("state", string(st)),
			slog.String("next_state", string(next)),
		)
	}
	return next, nextAcc, actions
}

func (e *Engine) dispatch(ctx context.Context, userID int64, ev Event, st State, acc Accumulated) (State, Accumulated, []Action) {
	switch st {
	case StateRoot:
		return e.handleRoot(ctx, userID, ev, acc)
	case StateAwaitingAge:
		return e.handleAge(ctx, userID, ev, acc)
	case StateAwaitingGender:
		return e.handleGender(ctx, userID, ev, acc)
	case StateAwaitingCategories:
		return e.handleCategories(ctx, userID, ev, acc)
	case StateAwaitingLocation:
		return e.handleLocation(ctx, userID, ev, acc)
	case StateAwaitingCustomLocation:
		return e.handleCustomLocation(ctx, userID, ev, acc)
	case StateAwaitingFeedback:
		return e.handleFeedback(ctx, userID, ev, acc)
	case StateAwaitingSupportMessage:
		return e.handleSupportMessage(ctx, userID, ev, acc)
	case StateAwaitingSupportPhotoCaption:
		return e.handleSupportCaption(ctx, userID, ev, acc)
	case StateAwaitingAdminBroadcastText:
		return e.handleBroadcastText(ctx, userID, ev, acc)
	default:
		// unknown state from an older session; reset to the menu
		return StateRoot, Accumulated{}, []Action{e.mainMenu(userID)}
	}
}

func (e *Engine) handleRoot(ctx context.Context, userID int64, ev Event, acc Accumulated) (State, Accumulated, []Action) {
	switch ev.Kind {
	case EventSelection:
		if ev.Key != SelectMenu {
			return StateRoot, acc, []Action{e.mainMenu(userID)}
		}
		switch ev.Payload {
		case MenuSurvey:
			return StateAwaitingAge, Accumulated{}, []Action{
				say(surveyIntroText),
				ask(askAgeText, ageMenu()),
			}
		case MenuSupport:
			return StateAwaitingSupportMessage, Accumulated{}, []Action{say(supportIntroText)}
		case MenuAdmin:
			if !e.isOperator(userID) {
				return StateRoot, acc, []Action{say(noAdminPanelText)}
			}
			return StateRoot, acc, []Action{ask(chooseActionText, AdminMenu())}
		default:
			return StateRoot, acc, []Action{e.mainMenu(userID)}
		}
	case EventText:
		if strings.TrimSpace(ev.Text) == "" {
			return StateRoot, acc, []Action{e.mainMenu(userID)}
		}
		// chat path: ad-hoc generation over the stored profile
		return e.finalize(ctx, userID, ev.Text)
	default:
		return StateRoot, acc, []Action{e.mainMenu(userID)}
	}
}

func (e *Engine) handleAge(ctx context.Context, userID int64, ev Event, acc Accumulated) (State, Accumulated, []Action) {
	if ev.Kind != EventSelection || ev.Key != SelectAge || !validAge(ev.Payload) {
		return StateAwaitingAge, acc, []Action{ask(askAgeText, ageMenu())}
	}
	if err := e.store.SetAge(ctx, userID, ev.Payload); err != nil {
		logger.Error(ctx, "engine", "profile.age",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return StateAwaitingAge, acc, []Action{say(retryText), ask(askAgeText, ageMenu())}
	}
	return StateAwaitingGender, acc, []Action{
		say(fmt.Sprintf("Вы выбрали возраст: %s", ev.Payload)),
		ask(askGenderText, genderMenu()),
	}
}

func (e *Engine) handleGender(ctx context.Context, userID int64, ev Event, acc Accumulated) (State, Accumulated, []Action) {
	if ev.Kind != EventSelection || ev.Key != SelectGender || !validGender(ev.Payload) {
		return StateAwaitingGender, acc, []Action{ask(askGenderText, genderMenu())}
	}
	if err := e.store.SetGender(ctx, userID, ev.Payload); err != nil {
		logger.Error(ctx, "engine", "profile.gender",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return StateAwaitingGender, acc, []Action{say(retryText), ask(askGenderText, genderMenu())}
	}
	return StateAwaitingCategories, acc, []Action{
		say(fmt.Sprintf("Вы выбрали пол: %s", ev.Payload)),
		ask(askCategoriesText, categoryMenu(0)),
	}
}

func (e *Engine) handleCategories(ctx context.Context, userID int64, ev Event, acc Accumulated) (State, Accumulated, []Action) {
	if ev.Kind != EventSelection {
		return StateAwaitingCategories, acc, []Action{ask(askCategoriesText, categoryMenu(acc.CategoryPage))}
	}
	switch ev.Key {
	case SelectCategoryPage:
		// page cursor only, accumulated picks unchanged
		page, err := strconv.Atoi(ev.Payload)
		if err != nil || page < 0 || page >= len(CategoryPages) {
			page = 0
		}
		acc.CategoryPage = page
		return StateAwaitingCategories, acc, []Action{ask(askCategoriesText, categoryMenu(page))}
	case SelectCategory:
		if !categoryListed(ev.Payload) {
			return StateAwaitingCategories, acc, []Action{ask(askCategoriesText, categoryMenu(acc.CategoryPage))}
		}
		if !containsString(acc.Categories, ev.Payload) && len(acc.Categories) < maxCategories {
			acc.Categories = append(acc.Categories, ev.Payload)
		}
		if err := e.store.SetCategories(ctx, userID, acc.Categories); err != nil {
			logger.Error(ctx, "engine", "profile.categories",
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
			)
		}
		if len(acc.Categories) < maxCategories {
			return StateAwaitingCategories, acc, []Action{
				ask(fmt.Sprintf("Вы выбрали: %s. Можете выбрать еще.", ev.Payload), categoryMenu(acc.CategoryPage)),
			}
		}
		return StateAwaitingLocation, acc, []Action{
			say(fmt.Sprintf("Вы выбрали: %s", strings.Join(acc.Categories, ", "))),
			ask(askLocationText, locationMenu(0)),
		}
	default:
		return StateAwaitingCategories, acc, []Action{ask(askCategoriesText, categoryMenu(acc.CategoryPage))}
	}
}

func (e *Engine) handleLocation(ctx context.Context, userID int64, ev Event, acc Accumulated) (State, Accumulated, []Action) {
	if ev.Kind != EventSelection {
		return StateAwaitingLocation, acc, []Action{ask(askLocationText, locationMenu(acc.LocationPage))}
	}
	switch ev.Key {
	case SelectLocationPage:
		page, err := strconv.Atoi(ev.Payload)
		if err != nil || page < 0 || page >= len(LocationPages) {
			page = 0
		}
		acc.LocationPage = page
		return StateAwaitingLocation, acc, []Action{ask(askLocationText, locationMenu(page))}
	case SelectLocationOther:
		return StateAwaitingCustomLocation, acc, []Action{say(askCustomCityText)}
	case SelectLocation:
		if !locationListed(ev.Payload) {
			return StateAwaitingLocation, acc, []Action{ask(askLocationText, locationMenu(acc.LocationPage))}
		}
		if err := e.store.SetLocation(ctx, userID, ev.Payload); err != nil {
			logger.Error(ctx, "engine", "profile.location",
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
			)
			return StateAwaitingLocation, acc, []Action{say(retryText), ask(askLocationText, locationMenu(acc.LocationPage))}
		}
		next, nextAcc, actions := e.finalize(ctx, userID, "")
		return next, nextAcc, append([]Action{say(fmt.Sprintf("Вы выбрали город: %s", ev.Payload))}, actions...)
	default:
		return StateAwaitingLocation, acc, []Action{ask(askLocationText, locationMenu(acc.LocationPage))}
	}
}

func (e *Engine) handleCustomLocation(ctx context.Context, userID int64, ev Event, acc Accumulated) (State, Accumulated, []Action) {
	if ev.Kind != EventText || strings.TrimSpace(ev.Text) == "" {
		return StateAwaitingCustomLocation, acc, []Action{say(askCustomCityText)}
	}
	location := strings.TrimSpace(ev.Text)
	if err := e.store.SetLocation(ctx, userID, location); err != nil {
		logger.Error(ctx, "engine", "profile.location",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return StateAwaitingCustomLocation, acc, []Action{say(retryText)}
	}
	next, nextAcc, actions := e.finalize(ctx, userID, "")
	return next, nextAcc, append([]Action{say(fmt.Sprintf("Вы ввели город: %s", location))}, actions...)
}

// finalize generates a recommendation from the stored profile and asks
// for a score. A failed generation yields the fixed fallback text and
// still moves on to feedback collection; only successful generations
// are logged to the recommendations table.
func (e *Engine) finalize(ctx context.Context, userID int64, query string) (State, Accumulated, []Action) {
	profile, err := e.store.Profile(ctx, userID)
	if err != nil {
		logger.Error(ctx, "engine", "profile.load",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}

	reply := FallbackText
	if text, genErr := e.gen.Recommend(ctx, profile, query); genErr == nil {
		reply = text
		if err := e.store.AddRecommendation(ctx, userID, text); err != nil {
			logger.Error(ctx, "engine", "recommendation.log",
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
			)
		}
	}

	intro := "Спасибо за ответы! Вот моя рекомендация для вас:"
	if query != "" {
		intro = "Вот моя рекомендация для вас:"
	}
	return StateAwaitingFeedback, Accumulated{}, []Action{
		say(intro + "\n\n" + reply),
		ask(askFeedbackText, feedbackMenu()),
	}
}

// handleFeedback accepts a score from 1 to 5. Anything else re-prompts
// without touching state or records.
func (e *Engine) handleFeedback(ctx context.Context, userID int64, ev Event, acc Accumulated) (State, Accumulated, []Action) {
	if ev.Kind != EventSelection || ev.Key != SelectFeedback {
		return StateAwaitingFeedback, acc, []Action{ask(askFeedbackText, feedbackMenu())}
	}
	score, err := strconv.Atoi(ev.Payload)
	if err != nil || score < 1 || score > 5 {
		return StateAwaitingFeedback, acc, []Action{ask(askFeedbackText, feedbackMenu())}
	}
	if err := e.store.AddFeedback(ctx, userID, score); err != nil {
		logger.Error(ctx, "engine", "feedback.save",
			slog.Int64("user_id", userID),
			slog.Int("score", score),
			slog.String("err", err.Error()),
		)
		return StateAwaitingFeedback, acc, []Action{say(retryText), ask(askFeedbackText, feedbackMenu())}
	}
	logger.Info(ctx, "engine", "feedback.saved",
		slog.Int64("user_id", userID),
		slog.Int("score", score),
	)
	return StateRoot, Accumulated{}, []Action{
		say(fmt.Sprintf("Спасибо за вашу оценку: %d!", score)),
		e.mainMenu(userID),
	}
}

func (e *Engine) handleSupportMessage(ctx context.Context, userID int64, ev Event, acc Accumulated) (State, Accumulated, []Action) {
	switch ev.Kind {
	case EventText:
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return StateAwaitingSupportMessage, acc, []Action{say(supportInvalidText)}
		}
		if err := e.store.AddSupportRequest(ctx, userID, text, ""); err != nil {
			logger.Error(ctx, "engine", "support.save",
				slog.Int64("user_id", userID),
				slog.String("err", err.Error()),
			)
			return StateAwaitingSupportMessage, acc, []Action{say(retryText)}
		}
		e.notifier.Notify(ctx, fmt.Sprintf("Новое обращение в поддержку от пользователя %d:\n\n%s", userID, text))
		return StateRoot, Accumulated{}, []Action{say(supportThanksText), e.mainMenu(userID)}
	case EventPhoto:
		acc.PhotoID = ev.PhotoID
		return StateAwaitingSupportPhotoCaption, acc, []Action{say(supportPhotoText)}
	default:
		return StateAwaitingSupportMessage, acc, []Action{say(supportInvalidText)}
	}
}

func (e *Engine) handleSupportCaption(ctx context.Context, userID int64, ev Event, acc Accumulated) (State, Accumulated, []Action) {
	text := strings.TrimSpace(ev.Text)
	if ev.Kind != EventText || text == "" || acc.PhotoID == "" {
		return StateAwaitingSupportPhotoCaption, acc, []Action{say(retryText)}
	}
	if err := e.store.AddSupportRequest(ctx, userID, text, acc.PhotoID); err != nil {
		logger.Error(ctx, "engine", "support.save",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return StateAwaitingSupportPhotoCaption, acc, []Action{say(retryText)}
	}
	e.notifier.Notify(ctx, fmt.Sprintf("Новое обращение в поддержку с фото от пользователя %d:\n\n%s", userID, text))
	return StateRoot, Accumulated{}, []Action{say(supportBothText), e.mainMenu(userID)}
}

func (e *Engine) handleBroadcastText(ctx context.Context, userID int64, ev Event, acc Accumulated) (State, Accumulated, []Action) {
	if !e.isOperator(userID) {
		return StateRoot, Accumulated{}, []Action{say(noAccessText)}
	}
	text := strings.TrimSpace(ev.Text)
	if ev.Kind != EventText || text == "" {
		return StateAwaitingAdminBroadcastText, acc, []Action{say(broadcastAskText)}
	}

	recipients, err := e.store.UserIDs(ctx)
	if err != nil {
		logger.Error(ctx, "engine", "broadcast.recipients",
			slog.String("err", err.Error()),
		)
		return StateAwaitingAdminBroadcastText, acc, []Action{say(retryText)}
	}
	sent, total := e.broadcaster.Dispatch(ctx, text, recipients)
	return StateRoot, Accumulated{}, []Action{
		say(fmt.Sprintf("Рассылка выполнена успешно. Отправлено %d из %d пользователей.", sent, total)),
		ask(chooseActionText, AdminMenu()),
	}
}

// AdminAction serves the stateless privileged views and the broadcast
// entry point. It returns the next state (broadcast composition moves
// to StateAwaitingAdminBroadcastText, views stay put).
func (e *Engine) AdminAction(ctx context.Context, userID int64, action string, st State) (State, []Action) {
	if !e.isOperator(userID) {
		return st, []Action{say(noAccessText)}
	}
	switch action {
	case AdminBroadcast:
		return StateAwaitingAdminBroadcastText, []Action{say(broadcastAskText)}
	case AdminStats:
		stats, err := e.store.Stats(ctx)
		if err != nil {
			logger.Error(ctx, "engine", "admin.stats",
				slog.String("err", err.Error()),
			)
			return st, []Action{say(retryText)}
		}
		return st, []Action{say(admin.FormatStats(stats))}
	case AdminSupport:
		requests, err := e.store.SupportRequests(ctx, 10)
		if err != nil {
			logger.Error(ctx, "engine", "admin.support",
				slog.String("err", err.Error()),
			)
			return st, []Action{say(retryText)}
		}
		return st, []Action{say(admin.FormatSupportList(requests))}
	default:
		return st, []Action{ask(chooseActionText, AdminMenu())}
	}
}

func (e *Engine) mainMenu(userID int64) Action {
	return ask(chooseActionText, MainMenu(e.isOperator(userID)))
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
