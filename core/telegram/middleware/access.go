package middleware

import tele "gopkg.in/telebot.v4"

// AccessOptions defines how operator-only checks behave.
// Allowed reports whether a user id is on the operator allow-list.
type AccessOptions struct {
	Allowed  func(userID int64) bool
	OnReject tele.HandlerFunc
}

// WithOperatorCheck wraps a command handler enforcing allow-list execution when required.
func WithOperatorCheck(opts AccessOptions, cmd struct {
	AdminOnly bool
	Handler   tele.HandlerFunc
}) tele.HandlerFunc {
	if !cmd.AdminOnly || opts.Allowed == nil {
		return cmd.Handler
	}
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil || !opts.Allowed(sender.ID) {
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
		return cmd.Handler(c)
	}
}

// OperatorOnlyMiddleware ensures that only allow-listed users reach downstream handlers.
func OperatorOnlyMiddleware(opts AccessOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.Allowed != nil {
				sender := c.Sender()
				if sender == nil || !opts.Allowed(sender.ID) {
					if opts.OnReject != nil {
						return opts.OnReject(c)
					}
					return nil
				}
			}
			return next(c)
		}
	}
}
