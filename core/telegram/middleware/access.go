package middleware

import tele "gopkg.in/telebot.v4"

// OperatorOptions defines how operator-only checks should behave.
type OperatorOptions struct {
	IsOperator func(id int64) bool
	OnReject   tele.HandlerFunc
}

// OperatorOnly wraps a handler so that only configured operators reach it.
// Everyone else gets the OnReject handler, or silence when none is set.
func OperatorOnly(opts OperatorOptions, handler tele.HandlerFunc) tele.HandlerFunc {
	if opts.IsOperator == nil {
		return func(tele.Context) error { return nil }
	}
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil || !opts.IsOperator(sender.ID) {
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
		return handler(c)
	}
}
