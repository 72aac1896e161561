package services

import (
	"bufio"
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/likexian/whois"
	"golang.org/x/net/publicsuffix"
)

const (
	DefaultWhoisServer    = "whois.iana.org"
	DefaultWhoisReferrals = 3
	DefaultWhoisTimeout   = 10 * time.Second
)

// ExpiryLookup resolves the registration expiry of the domain behind a URL.
type ExpiryLookup interface {
	LookupExpiry(ctx context.Context, rawURL string) (domain string, expiresAt time.Time, err error)
}

// WhoisClient asks the root server first and follows referrals itself, so
// that the hop count stays bounded.
type WhoisClient struct {
	Server       string
	MaxReferrals int

	query func(domain, server string) (string, error)
}

func NewWhoisClient(server string, maxReferrals int, timeout time.Duration) *WhoisClient {
	if server == "" {
		server = DefaultWhoisServer
	}

	client := whois.NewClient()
	client.SetTimeout(timeout)
	client.SetDisableReferral(true)

	return &WhoisClient{
		Server:       server,
		MaxReferrals: maxReferrals,
		query: func(domain, server string) (string, error) {
			return client.Whois(domain, server)
		},
	}
}

// DomainFromURL strips scheme, path and a leading "www." and reduces the host
// to its registrable domain.
func DomainFromURL(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}

	host := ""
	if u, err := url.Parse(s); err == nil {
		host = u.Hostname()
	}
	if host == "" {
		host = strings.SplitN(strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://"), "/", 2)[0]
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")

	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

var referralPattern = regexp.MustCompile(`(?i)^\s*(?:refer|whois|Registrar WHOIS Server|ReferralServer)\s*:\s*(\S+)`)

func findReferral(data string) string {
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		if m := referralPattern.FindStringSubmatch(sc.Text()); m != nil {
			server := strings.TrimPrefix(strings.ToLower(m[1]), "whois://")
			server = strings.TrimPrefix(server, "rwhois://")
			return strings.TrimSuffix(server, "/")
		}
	}
	return ""
}

// Lookup returns the WHOIS text of the domain. Answers of referred servers
// come first so that registrar data wins over registry data.
func (c *WhoisClient) Lookup(ctx context.Context, domain string) (string, error) {
	server := c.Server
	visited := map[string]bool{}
	var answers []string

	for hop := 0; hop <= c.MaxReferrals && server != ""; hop++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		visited[server] = true

		data, err := c.query(domain, server)
		if err != nil {
			if len(answers) > 0 {
				break
			}
			return "", newError(ErrProbeFailure, err, "could not fetch domain information for %s", domain)
		}
		if strings.TrimSpace(data) != "" {
			answers = append([]string{data}, answers...)
		}

		next := findReferral(data)
		if visited[next] {
			break
		}
		server = next
	}

	if len(answers) == 0 {
		return "", newError(ErrProbeFailure, ErrWhoisNoData, "domain %s", domain)
	}
	return strings.Join(answers, "\n"), nil
}

func (c *WhoisClient) LookupExpiry(ctx context.Context, rawURL string) (string, time.Time, error) {
	domain := DomainFromURL(rawURL)

	data, err := c.Lookup(ctx, domain)
	if err != nil {
		return domain, time.Time{}, err
	}

	expiresAt, err := ParseExpiry(data)
	if err != nil {
		return domain, time.Time{}, newError(ErrProbeFailure, err, "domain %s", domain)
	}
	return domain, expiresAt, nil
}

var expiryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Expiry Date:[ \t]*(.+)`),
	regexp.MustCompile(`(?i)Registrar Registration Expiration Date:[ \t]*(.+)`),
	regexp.MustCompile(`(?i)Registry Expiry Date:[ \t]*(.+)`),
	regexp.MustCompile(`(?i)Expiration Date:[ \t]*(.+)`),
	regexp.MustCompile(`(?i)Expires:[ \t]*(.+)`),
}

var (
	trailingZone   = regexp.MustCompile(`\s*[A-Z]{3,4}\s*$`)
	timeDesignator = regexp.MustCompile(`\dT\d`)
)

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
}

var plainLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"2006.01.02",
	"2006.01.02 15:04:05",
	"02-Jan-2006",
	"02-Jan-2006 15:04:05",
	"2-Jan-2006",
	"02.01.2006",
	"01/02/2006",
	"01/02/2006 15:04:05",
	"Jan 2 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon Jan 2 2006",
	"Mon Jan _2 15:04:05 2006",
	"Mon Jan 2 15:04:05 2006",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05-07",
}

// ParseExpiry extracts the expiry date from raw WHOIS text. The labels are
// tried in order and the first match is parsed.
func ParseExpiry(data string) (time.Time, error) {
	var value string
	for _, p := range expiryPatterns {
		if m := p.FindStringSubmatch(data); m != nil {
			value = strings.TrimSpace(m[1])
			break
		}
	}
	if value == "" {
		return time.Time{}, ErrExpiryNotFound
	}

	if timeDesignator.MatchString(value) {
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, newError(ErrExpiryUnparseable, nil, "%s: %q", ErrExpiryUnparseable, value)
	}

	value = trailingZone.ReplaceAllString(value, "")
	for _, layout := range plainLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, newError(ErrExpiryUnparseable, nil, "%s: %q", ErrExpiryUnparseable, value)
}
