package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

const DefaultServer = "https://ntfy.sh"

// NtfySender posts plain-text bodies to <server>/<topic>.
type NtfySender struct {
	Client *http.Client
	Server string
	Topic  string
}

func (s NtfySender) URL() string {
	server := strings.TrimRight(strings.TrimSpace(s.Server), "/")
	if server == "" {
		server = DefaultServer
	}
	return server + "/" + strings.TrimLeft(s.Topic, "/")
}

func (s NtfySender) Send(ctx context.Context, n Notification) error {
	if strings.TrimSpace(s.Topic) == "" {
		return ErrNoTopic
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL(), strings.NewReader(n.Text))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if n.Title != "" {
		req.Header.Set("Title", n.Title)
	}
	if p := ntfyPriority(n.Priority); p != 0 {
		req.Header.Set("Priority", strconv.Itoa(p))
	}
	if len(n.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(n.Tags, ","))
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// ntfyPriority maps 0..10 onto ntfy's 1..5; 0 leaves the server default.
func ntfyPriority(p int) int {
	switch {
	case p >= 9:
		return 5
	case p >= 7:
		return 4
	case p >= 5:
		return 3
	case p >= 3:
		return 2
	case p > 0:
		return 1
	default:
		return 0
	}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("notify: server returned %d", e.Code) }

// Temporary reports whether a retry may succeed.
func (e *StatusError) Temporary() bool { return e.Code == http.StatusTooManyRequests || e.Code >= 500 }
