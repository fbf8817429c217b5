// Package utm extracts UTM tracking parameters from URLs and applies them back.
package utm

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/samber/lo"
)

const prefix = "utm_"

// Keys lists the supported UTM fields without the "utm_" prefix.
var Keys = []string{"source", "medium", "campaign", "term", "content"}

// Params holds the values of the supported UTM fields. An empty field is unset.
type Params struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
}

// IsZero reports whether no field is set.
func (p Params) IsZero() bool {
	return p == Params{}
}

// Get returns the value of the field named key ("source", "medium", ...).
func (p Params) Get(key string) string {
	switch key {
	case "source":
		return p.Source
	case "medium":
		return p.Medium
	case "campaign":
		return p.Campaign
	case "term":
		return p.Term
	case "content":
		return p.Content
	default:
		return ""
	}
}

func (p *Params) set(key, value string) {
	switch key {
	case "source":
		p.Source = value
	case "medium":
		p.Medium = value
	case "campaign":
		p.Campaign = value
	case "term":
		p.Term = value
	case "content":
		p.Content = value
	}
}

// Map returns the set fields keyed by their short name.
func (p Params) Map() map[string]string {
	m := make(map[string]string, len(Keys))
	for _, key := range Keys {
		if v := p.Get(key); v != "" {
			m[key] = v
		}
	}
	return m
}

// Merge returns p with every field that is set in override replaced by the override value.
func (p Params) Merge(override Params) Params {
	return Params{
		Source:   lo.CoalesceOrEmpty(override.Source, p.Source),
		Medium:   lo.CoalesceOrEmpty(override.Medium, p.Medium),
		Campaign: lo.CoalesceOrEmpty(override.Campaign, p.Campaign),
		Term:     lo.CoalesceOrEmpty(override.Term, p.Term),
		Content:  lo.CoalesceOrEmpty(override.Content, p.Content),
	}
}

// Extract removes the utm_* query parameters from rawURL and returns the cleaned
// URL together with the extracted values. A URL without UTM parameters is
// returned unchanged.
func Extract(rawURL string) (string, Params, error) {
	const op = "utm.Extract"

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", Params{}, fmt.Errorf("%s: failed to parse url: %w", op, err)
	}

	q := u.Query()

	var (
		p     Params
		found bool
	)

	for _, key := range Keys {
		name := prefix + key
		if !q.Has(name) {
			continue
		}

		found = true
		p.set(key, q.Get(name))
		q.Del(name)
	}

	if !found {
		return rawURL, Params{}, nil
	}

	u.RawQuery = q.Encode()

	return u.String(), p, nil
}

// Apply sets the non-empty params as utm_* query parameters on rawURL.
// rawURL is returned as is when p is empty or cannot be parsed.
func Apply(rawURL string, p Params) string {
	if p.IsZero() {
		return rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	q := u.Query()
	for key, value := range p.Map() {
		q.Set(prefix+key, value)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// Value stores Params as a JSON document, or NULL when empty.
func (p Params) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}

	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	return string(b), nil
}

// Scan reads Params from a JSON document column.
func (p *Params) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*p = Params{}
		return nil
	case []byte:
		return p.unmarshal(v)
	case string:
		return p.unmarshal([]byte(v))
	default:
		return fmt.Errorf("cannot scan type %T into utm.Params", value)
	}
}

func (p *Params) unmarshal(b []byte) error {
	*p = Params{}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, p)
}
