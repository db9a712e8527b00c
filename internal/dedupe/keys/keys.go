// Package keys derives stable identity fingerprints from raw contact fields.
// A KeySet is non-authoritative: it exists only to find candidate duplicates,
// never to prove identity.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Builder derives dedupe key sets. The salt comes from configuration and must
// be stable per deployment; changing it invalidates all stored email hashes.
type Builder struct {
	salt               string
	companyDomainGuess bool
}

// NewBuilder creates a key builder. companyDomainGuess enables the heuristic
// company-name-to-domain derivation, which is approximate and excludable by
// policy.
func NewBuilder(salt string, companyDomainGuess bool) *Builder {
	return &Builder{salt: salt, companyDomainGuess: companyDomainGuess}
}

// KeySet is the derived fingerprint of a contact. Empty string means the key
// could not be derived. A KeySet with no keys at all is invalid.
type KeySet struct {
	EmailHash string `json:"emailHash,omitempty"`
	Domain    string `json:"domain,omitempty"`
	NameKey   string `json:"nameKey,omitempty"`
}

// Valid reports whether at least one key is present.
func (k KeySet) Valid() bool {
	return k.EmailHash != "" || k.Domain != "" || k.NameKey != ""
}

// Input is the subset of lead fields the builder reads.
type Input struct {
	Email   string
	Name    string
	Company string
	Domain  string
}

// Build derives a KeySet from the given fields. All derivations are
// individually best-effort; a missing or malformed field simply leaves its
// key empty.
func (b *Builder) Build(in Input) KeySet {
	var ks KeySet

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if validEmail(email) {
		ks.EmailHash = b.hashEmail(email)
	}

	switch {
	case strings.TrimSpace(in.Domain) != "":
		ks.Domain = NormalizeDomain(in.Domain)
	case ks.EmailHash != "":
		domain := email[strings.LastIndex(email, "@")+1:]
		// A shared mailbox provider is not a useful company identifier.
		if !IsFreeMailDomain(domain) {
			ks.Domain = NormalizeDomain(domain)
		}
	case b.companyDomainGuess && strings.TrimSpace(in.Company) != "":
		ks.Domain = guessCompanyDomain(in.Company)
	}

	ks.NameKey = NameKey(in.Name)

	return ks
}

func (b *Builder) hashEmail(normalized string) string {
	sum := sha256.Sum256([]byte(normalized + b.salt))
	return hex.EncodeToString(sum[:])
}

// validEmail checks the minimal local@domain shape: both parts non-empty and
// the domain containing a dot. Full RFC validation is deliberately out of
// scope; the fingerprint only needs a plausible address.
func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if strings.Count(email, "@") != 1 {
		return false
	}
	domain := email[at+1:]
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}

// NormalizeDomain lower-cases, strips a leading "www." and a trailing slash.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, "/")
	d = strings.TrimPrefix(d, "www.")
	return d
}

// freeMailDomains lists public mail providers whose domains never identify a
// company.
var freeMailDomains = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"yahoo.com":      {},
	"yahoo.co.uk":    {},
	"hotmail.com":    {},
	"hotmail.co.uk":  {},
	"outlook.com":    {},
	"live.com":       {},
	"msn.com":        {},
	"aol.com":        {},
	"icloud.com":     {},
	"me.com":         {},
	"mac.com":        {},
	"protonmail.com": {},
	"proton.me":      {},
	"gmx.com":        {},
	"gmx.net":        {},
	"zoho.com":       {},
	"mail.com":       {},
	"yandex.com":     {},
	"yandex.ru":      {},
}

// IsFreeMailDomain reports whether the domain belongs to a known public mail
// provider.
func IsFreeMailDomain(domain string) bool {
	_, ok := freeMailDomains[NormalizeDomain(domain)]
	return ok
}

// legalSuffixes are entity markers stripped before guessing a domain from a
// company name.
var legalSuffixes = []string{"incorporated", "corporation", "limited", "inc", "corp", "llc", "ltd", "co"}

// guessCompanyDomain derives a best-effort domain from a bare company name by
// stripping legal-entity suffixes and punctuation and appending ".com". The
// result is advisory: it was never verified against DNS.
func guessCompanyDomain(company string) string {
	name := strings.ToLower(strings.TrimSpace(company))
	tokens := tokenize(name)
	if len(tokens) == 0 {
		return ""
	}
	for len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		if !isLegalSuffix(last) {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	guess := strings.Join(tokens, "")
	if len(guess) < 3 || len(guess) > 30 {
		return ""
	}
	return guess + ".com"
}

func isLegalSuffix(token string) bool {
	for _, s := range legalSuffixes {
		if token == s {
			return true
		}
	}
	return false
}

// honorifics and generational suffixes stripped from names before keying.
var (
	honorifics   = map[string]struct{}{"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}}
	nameSuffixes = map[string]struct{}{"jr": {}, "sr": {}, "ii": {}, "iii": {}, "iv": {}}
)

// NameKey normalizes a display name into an order-independent token key:
// lower-cased, honorifics and generational suffixes removed, punctuation
// stripped, single-character tokens dropped, tokens sorted alphabetically.
// Sorting makes "John Doe" and "Doe John" collide.
func NameKey(name string) string {
	tokens := tokenize(strings.ToLower(strings.TrimSpace(name)))
	kept := tokens[:0]
	for _, tok := range tokens {
		if len(tok) < 2 {
			continue
		}
		if _, ok := honorifics[tok]; ok {
			continue
		}
		if _, ok := nameSuffixes[tok]; ok {
			continue
		}
		kept = append(kept, tok)
	}
	if len(kept) == 0 {
		return ""
	}
	sort.Strings(kept)
	return strings.Join(kept, " ")
}

// tokenize splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !isAlphanumeric(r)
	})
}

func isAlphanumeric(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

// Similarity computes the Jaccard similarity of two name keys, treating each
// as a set of tokens. Symmetric, bounded in [0,1]; identical keys
// short-circuit to 1.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(key string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(key) {
		set[tok] = struct{}{}
	}
	return set
}
