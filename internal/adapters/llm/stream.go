package llm

import (
	"bufio"
	"context"
	"io"

	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
)

// lineParser decodes one line of a streaming response. skip ignores the
// line; done ends the stream after content is emitted.
type lineParser func(line []byte) (content string, done, skip bool, err error)

// pump reads body line by line and forwards fragments to a new channel.
// The goroutine owns body and calls release when it exits, whether the
// stream finished, failed, or ctx was cancelled by the consumer.
func pump(ctx context.Context, body io.ReadCloser, release func(), parse lineParser) <-chan ports.StreamToken {
	ch := make(chan ports.StreamToken, 16)
	go func() {
		defer close(ch)
		defer release()
		defer body.Close()

		// Closing the body unblocks a scanner waiting on a stalled connection.
		stop := context.AfterFunc(ctx, func() { body.Close() })
		defer stop()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64<<10), 1<<20)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			content, done, skip, err := parse(line)
			if err != nil {
				send(ctx, ch, ports.StreamToken{Done: true, Error: err})
				return
			}
			if skip {
				continue
			}
			if content != "" && !send(ctx, ch, ports.StreamToken{Content: content}) {
				return
			}
			if done {
				send(ctx, ch, ports.StreamToken{Done: true})
				return
			}
		}

		err := scanner.Err()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		send(ctx, ch, ports.StreamToken{Done: true, Error: err})
	}()
	return ch
}

// send delivers tok unless ctx is done first. Terminal tokens are still
// offered without blocking after cancellation.
func send(ctx context.Context, ch chan<- ports.StreamToken, tok ports.StreamToken) bool {
	select {
	case ch <- tok:
		return true
	case <-ctx.Done():
		if tok.Done {
			select {
			case ch <- tok:
			default:
			}
		}
		return false
	}
}
