package cookie

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/crossauth/session"
)

// DefaultName is the session cookie name used when Options.Name is empty.
const DefaultName = "crossauth.session_token"

var (
	// ErrNoCookie means the request carried no session cookie.
	ErrNoCookie = errors.New("session cookie not present")
	// ErrMalformed means a session cookie was present but its value was unusable.
	ErrMalformed = errors.New("session cookie malformed")
)

// Options configures a Codec.
type Options struct {
	Name   string
	Domain string
	Path   string
	// MaxAge is normally the session lifetime. Zero makes a browser-session cookie.
	MaxAge time.Duration
	// Secret enables HS256 signing of cookie values. Empty stores the raw token.
	Secret []byte
	Issuer string
}

// Codec encodes session tokens into cookies and extracts them from requests.
type Codec struct {
	name   string
	domain string
	path   string
	maxAge int
	signer *Signer
}

// NewCodec validates opts and returns a Codec.
func NewCodec(opts Options) (*Codec, error) {
	c := &Codec{
		name:   strings.TrimSpace(opts.Name),
		domain: strings.TrimSpace(opts.Domain),
		path:   opts.Path,
		maxAge: int(opts.MaxAge / time.Second),
	}
	if c.name == "" {
		c.name = DefaultName
	}
	if c.path == "" {
		c.path = "/"
	}
	if opts.MaxAge < 0 {
		return nil, errors.New("cookie MaxAge must be >= 0")
	}
	if len(opts.Secret) > 0 {
		signer, err := NewSigner(opts.Secret, opts.Issuer)
		if err != nil {
			return nil, err
		}
		c.signer = signer
	}
	return c, nil
}

// Name returns the cookie name.
func (c *Codec) Name() string {
	return c.name
}

// Encode returns the Set-Cookie value carrying token.
func (c *Codec) Encode(token string) (*http.Cookie, error) {
	value := token
	if c.signer != nil {
		signed, err := c.signer.Sign(token)
		if err != nil {
			return nil, err
		}
		value = signed
	}

	ck := c.base()
	ck.Value = value
	ck.MaxAge = c.maxAge
	return ck, nil
}

// Clear returns a cookie that deletes the session cookie on the client.
func (c *Codec) Clear() *http.Cookie {
	ck := c.base()
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0)
	return ck
}

func (c *Codec) base() *http.Cookie {
	return &http.Cookie{
		Name:        c.name,
		Path:        c.path,
		Domain:      c.domain,
		SameSite:    http.SameSiteNoneMode,
		HttpOnly:    true,
		Secure:      true,
		Partitioned: true,
	}
}

// Decode extracts the session token from a raw Cookie request header.
func (c *Codec) Decode(rawCookieHeader string) (string, error) {
	r := &http.Request{Header: http.Header{}}
	if rawCookieHeader != "" {
		r.Header.Set("Cookie", rawCookieHeader)
	}
	return c.DecodeRequest(r)
}

// DecodeRequest extracts the session token from r. It returns ErrNoCookie when the
// cookie is absent and ErrMalformed when every cookie with the name fails to decode.
// Browsers may send both a partitioned and an unpartitioned cookie with the same
// name; the first usable one wins.
func (c *Codec) DecodeRequest(r *http.Request) (string, error) {
	cookies := r.CookiesNamed(c.name)
	if len(cookies) == 0 {
		return "", ErrNoCookie
	}

	for _, ck := range cookies {
		if token, ok := c.decodeValue(ck.Value); ok {
			return token, nil
		}
	}
	return "", ErrMalformed
}

func (c *Codec) decodeValue(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	token := value
	if c.signer != nil {
		verified, err := c.signer.Verify(value)
		if err != nil {
			return "", false
		}
		token = verified
	}
	if !session.ValidToken(token) {
		return "", false
	}
	return token, true
}
