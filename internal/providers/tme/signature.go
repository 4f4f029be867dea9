package tme

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// params is a TME request: scalar fields plus list fields sent as
// key[0]=..&key[1]=.. in index order.
type params struct {
	values map[string]string
	lists  map[string][]string
}

func newParams() *params {
	return &params{values: make(map[string]string), lists: make(map[string][]string)}
}

func (p *params) set(key, value string) {
	p.values[key] = value
}

func (p *params) setList(key string, values []string) {
	p.lists[key] = values
}

// encode builds the form body with top-level keys sorted, the form the
// signature is computed over.
func (p *params) encode() string {
	keys := make([]string, 0, len(p.values)+len(p.lists))
	for key := range p.values {
		keys = append(keys, key)
	}
	for key := range p.lists {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if list, ok := p.lists[key]; ok {
			for i, value := range list {
				parts = append(parts, formEscape(key+"["+strconv.Itoa(i)+"]")+"="+formEscape(value))
			}
			continue
		}
		parts = append(parts, formEscape(key)+"="+formEscape(p.values[key]))
	}
	return strings.Join(parts, "&")
}

// signedBody returns the encoded params with ApiSignature appended.
func signedBody(secret, method, endpoint string, p *params) string {
	query := p.encode()
	return query + "&ApiSignature=" + formEscape(sign(secret, method, endpoint, query))
}

// sign is base64(HMAC-SHA1(secret, METHOD&rawurlencode(url)&rawurlencode(query))).
func sign(secret, method, endpoint, query string) string {
	base := strings.ToUpper(method) + "&" + rawURLEncode(endpoint) + "&" + rawURLEncode(query)
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// formEscape matches PHP urlencode: spaces become '+', '~' is escaped.
func formEscape(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "~", "%7E")
}

// rawURLEncode matches PHP rawurlencode (RFC 3986).
func rawURLEncode(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}
