package handoff

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// LinkBuilder produces the deep link that opens a pre-filled conversation
// with the human scheduler.
type LinkBuilder interface {
	BuildLink(ctx context.Context, b Booking) (string, error)
}

// URLLinkBuilder builds wa.me style links: <base>/<phone digits>?text=<summary>.
type URLLinkBuilder struct {
	base  *url.URL
	phone string
}

// NewURLLinkBuilder validates the base URL and scheduler phone.
func NewURLLinkBuilder(baseURL, schedulerPhone string) (*URLLinkBuilder, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("handoff: invalid link base url %q", baseURL)
	}
	phone := digitsOnly(schedulerPhone)
	if phone == "" {
		return nil, fmt.Errorf("handoff: scheduler phone is required")
	}
	return &URLLinkBuilder{base: base, phone: phone}, nil
}

func (b *URLLinkBuilder) BuildLink(_ context.Context, booking Booking) (string, error) {
	u := *b.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + b.phone
	q := url.Values{}
	q.Set("text", FormatSummary(booking))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func digitsOnly(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
