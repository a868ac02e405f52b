package charmarkov

import (
	"context"
	"errors"
	"log/slog"
)

// GenerateStream samples up to count characters and delivers them on a
// read-only channel, one rune at a time. The channel is closed once count
// characters have been sent, the context is cancelled, or the window
// reaches a history the model has never seen. Failures mid-stream are
// logged rather than returned; callers needing the error should use
// Generate instead.
func (m *Model) GenerateStream(ctx context.Context, count int, opts ...GenerateOption) <-chan rune {
	options := defaultGenerateOptions()
	for _, opt := range opts {
		opt(options)
	}

	out := make(chan rune)

	go func() {
		defer close(out)

		history := m.initialHistory(options.seed)

		for generated := 0; generated < count; generated++ {
			select {
			case <-ctx.Done():
				m.logger.Debug("generation stream cancelled by context")
				return
			default:
			}

			char, err := m.step(history, options)
			if err != nil {
				if errors.Is(err, ErrUnseenHistory) {
					m.logger.Debug("generation stream hit unseen history",
						slog.Int("generated_length", generated),
					)
				} else {
					m.logger.Error("generation stream failed", slog.Any("error", err))
				}
				return
			}

			select {
			case <-ctx.Done():
				return
			case out <- char:
			}

			history = append(history[1:], char)
		}
	}()

	return out
}
