package source

import (
	_ "embed"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed endpoint.toml
var endpointTOML []byte

// Profile describes a container-style search endpoint.
type Profile struct {
	Name             string            `toml:"name"`
	BaseURL          string            `toml:"base_url"`
	WarmupURL        string            `toml:"warmup_url"`
	ContainerID      string            `toml:"container_id"`
	PageParam        string            `toml:"page_param"`
	CardType         int               `toml:"card_type"`
	OKValues         []string          `toml:"ok_values"`
	ThrottleStatuses []int             `toml:"throttle_statuses"`
	MaxPayloadBytes  int64             `toml:"max_payload_bytes"`
	Headers          map[string]string `toml:"headers"`
}

// DefaultProfile returns the embedded endpoint profile.
func DefaultProfile() (Profile, error) {
	var p Profile
	if err := toml.Unmarshal(endpointTOML, &p); err != nil {
		return Profile{}, fmt.Errorf("parsing endpoint profile: %w", err)
	}
	return p, nil
}

// RequestURL builds the query URL for keyword and page.
func (p Profile) RequestURL(keyword string, page int) (string, error) {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	q := u.Query()
	q.Set("containerid", strings.ReplaceAll(p.ContainerID, "{keyword}", url.PathEscape(keyword)))
	q.Set(p.PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p Profile) throttleStatus(code int) bool {
	return slices.Contains(p.ThrottleStatuses, code)
}

func (p Profile) okValue(v string) bool {
	return slices.Contains(p.OKValues, v)
}
