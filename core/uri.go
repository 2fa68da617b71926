package core

import (
	"net/url"
	"strings"
)

// URIScheme identifies which payment/identity URI form a string parses as
// (spec.md, grounded on original_source/paykit-lib/src/uri.rs).
type URIScheme int

const (
	SchemeUnknown URIScheme = iota
	SchemePubky
	SchemeLightning
	SchemeBitcoin
	SchemePaykitRequest
	SchemePaykitInvoice
)

// ParsedURI is the normalized result of parsing any of the recognized
// schemes. Only the fields relevant to the matched scheme are populated.
type ParsedURI struct {
	Scheme    URIScheme
	Raw       string
	PubkyZ32  string
	Invoice   string
	Address   string
	RequestID string
	From      string
	Method    MethodId
	Data      string
}

const (
	minBareAddressLen = 26
	maxBareAddressLen = 62
)

// ParseURI recognizes pubky://, lightning:/bare invoice, bitcoin:/bare
// address, and paykit:request|invoice forms (spec.md glossary; original
// accepted both schemed and bare bolt11/address strings).
func ParseURI(raw string) (ParsedURI, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(trimmed, "pubky://"):
		return ParsedURI{Scheme: SchemePubky, Raw: raw, PubkyZ32: strings.TrimPrefix(trimmed, "pubky://")}, nil
	case strings.HasPrefix(trimmed, "lightning:"):
		return ParsedURI{Scheme: SchemeLightning, Raw: raw, Invoice: strings.TrimPrefix(trimmed, "lightning:")}, nil
	case isBareLightningInvoice(trimmed):
		return ParsedURI{Scheme: SchemeLightning, Raw: raw, Invoice: trimmed}, nil
	case strings.HasPrefix(trimmed, "bitcoin:"):
		return ParsedURI{Scheme: SchemeBitcoin, Raw: raw, Address: strings.TrimPrefix(trimmed, "bitcoin:")}, nil
	case isBareBitcoinAddress(trimmed):
		return ParsedURI{Scheme: SchemeBitcoin, Raw: raw, Address: trimmed}, nil
	case strings.HasPrefix(trimmed, "paykit:request"):
		return parsePaykitRequest(raw, trimmed)
	case strings.HasPrefix(trimmed, "paykit:invoice"):
		return parsePaykitInvoice(raw, trimmed)
	default:
		return ParsedURI{}, NewError(CodeInvalidData, "unrecognized uri scheme")
	}
}

func isBareLightningInvoice(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "lnbc") || strings.HasPrefix(lower, "lntb") || strings.HasPrefix(lower, "lnbcrt")
}

// isBareBitcoinAddress recognizes an un-schemed address by its leading
// version byte (original_source/paykit-lib/src/uri.rs:146-154): bech32
// ("bc1"), P2PKH ("1"), or P2SH ("3"), bounded to plausible address length.
func isBareBitcoinAddress(s string) bool {
	if len(s) < minBareAddressLen || len(s) > maxBareAddressLen || strings.Contains(s, ":") {
		return false
	}
	return strings.HasPrefix(s, "bc1") || strings.HasPrefix(s, "1") || strings.HasPrefix(s, "3")
}

func parsePaykitRequest(raw, trimmed string) (ParsedURI, error) {
	q, err := queryOf(trimmed, "paykit:request")
	if err != nil {
		return ParsedURI{}, err
	}
	return ParsedURI{
		Scheme:    SchemePaykitRequest,
		Raw:       raw,
		RequestID: q.Get("request_id"),
		From:      q.Get("from"),
	}, nil
}

func parsePaykitInvoice(raw, trimmed string) (ParsedURI, error) {
	q, err := queryOf(trimmed, "paykit:invoice")
	if err != nil {
		return ParsedURI{}, err
	}
	return ParsedURI{
		Scheme: SchemePaykitInvoice,
		Raw:    raw,
		Method: MethodId(q.Get("method")),
		Data:   q.Get("data"),
	}, nil
}

// queryOf parses the query portion after prefix, decoding '+' as space the
// way the original URI decoder does for paykit: query parameters.
func queryOf(trimmed, prefix string) (url.Values, error) {
	rest := strings.TrimPrefix(trimmed, prefix)
	rest = strings.TrimPrefix(rest, "?")
	q, err := url.ParseQuery(rest)
	if err != nil {
		return nil, WrapError(CodeInvalidData, "parse paykit uri query", err)
	}
	return q, nil
}

// Emit re-renders a ParsedURI back to its canonical string form.
func (p ParsedURI) Emit() (string, error) {
	switch p.Scheme {
	case SchemePubky:
		return "pubky://" + p.PubkyZ32, nil
	case SchemeLightning:
		return "lightning:" + p.Invoice, nil
	case SchemeBitcoin:
		return "bitcoin:" + p.Address, nil
	case SchemePaykitRequest:
		v := url.Values{}
		v.Set("request_id", p.RequestID)
		v.Set("from", p.From)
		return "paykit:request?" + v.Encode(), nil
	case SchemePaykitInvoice:
		v := url.Values{}
		v.Set("method", string(p.Method))
		v.Set("data", p.Data)
		return "paykit:invoice?" + v.Encode(), nil
	default:
		return "", NewError(CodeInvalidData, "cannot emit unknown uri scheme")
	}
}
