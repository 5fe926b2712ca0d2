// Package catalog holds the static list of services the shop offers.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultLocale is used when a service has no name in the requested locale.
const DefaultLocale = "fr"

//go:embed default.json
var defaultCatalog []byte

var ErrInvalidCatalog = errors.New("invalid catalog")

// Price is either an amount in cents or "on request".
type Price struct {
	Cents     int64
	OnRequest bool
}

func (p Price) String() string {
	if p.OnRequest {
		return "on_request"
	}
	return fmt.Sprintf("%d.%02d", p.Cents/100, p.Cents%100)
}

func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Price) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n float64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("price: %w", err)
		}
		s = strconv.FormatFloat(n, 'f', 2, 64)
	}
	parsed, err := ParsePrice(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePrice accepts "on_request" or a decimal with at most two fraction digits.
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "on_request") {
		return Price{OnRequest: true}, nil
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return Price{}, fmt.Errorf("price %q: too many decimals", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return Price{}, fmt.Errorf("price %q: invalid amount", s)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || cents < 0 {
		return Price{}, fmt.Errorf("price %q: invalid amount", s)
	}
	return Price{Cents: units*100 + cents}, nil
}

type Service struct {
	ID       string
	Names    map[string]string
	Duration time.Duration
	Price    Price
}

// Bookable reports whether customers can reserve the service online. Services
// without a fixed duration (private events) are arranged by phone.
func (s Service) Bookable() bool {
	return s.Duration > 0
}

// Name returns the localized name, falling back to DefaultLocale.
func (s Service) Name(locale string) string {
	if n, ok := s.Names[NormalizeLocale(locale)]; ok && n != "" {
		return n
	}
	if n, ok := s.Names[DefaultLocale]; ok {
		return n
	}
	return s.ID
}

// NormalizeLocale keeps the language part of a tag ("en-GB" -> "en") and
// falls back to DefaultLocale for anything else.
func NormalizeLocale(raw string) string {
	l := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexAny(l, "-_"); i > 0 {
		l = l[:i]
	}
	if len(l) != 2 {
		return DefaultLocale
	}
	return l
}

type Catalog struct {
	services []Service
	byID     map[string]Service
}

type serviceFile struct {
	ID              string            `json:"id"`
	Names           map[string]string `json:"names"`
	DurationMinutes int               `json:"duration_minutes"`
	Price           Price             `json:"price"`
}

// Load parses a JSON array of services. Ids must be unique and every service
// needs a name in DefaultLocale.
func Load(r io.Reader) (*Catalog, error) {
	var raw []serviceFile
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	c := &Catalog{byID: make(map[string]Service, len(raw))}
	for _, sf := range raw {
		id := strings.TrimSpace(sf.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: service without id", ErrInvalidCatalog)
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("%w: duplicate service %q", ErrInvalidCatalog, id)
		}
		if sf.Names[DefaultLocale] == "" {
			return nil, fmt.Errorf("%w: service %q has no %s name", ErrInvalidCatalog, id, DefaultLocale)
		}
		if sf.DurationMinutes < 0 {
			return nil, fmt.Errorf("%w: service %q has negative duration", ErrInvalidCatalog, id)
		}
		svc := Service{
			ID:       id,
			Names:    sf.Names,
			Duration: time.Duration(sf.DurationMinutes) * time.Minute,
			Price:    sf.Price,
		}
		c.services = append(c.services, svc)
		c.byID[id] = svc
	}
	if len(c.services) == 0 {
		return nil, fmt.Errorf("%w: no services", ErrInvalidCatalog)
	}
	return c, nil
}

// LoadFile reads the catalog from path, or the embedded default when path is empty.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Load(strings.NewReader(string(defaultCatalog)))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func (c *Catalog) Get(id string) (Service, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// List returns services in file order.
func (c *Catalog) List() []Service {
	out := make([]Service, len(c.services))
	copy(out, c.services)
	return out
}
