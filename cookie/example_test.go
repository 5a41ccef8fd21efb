package cookie_test

import (
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/crossauth/cookie"
)

// ExampleCodec_Encode shows the attributes issued for cross-site use.
func ExampleCodec_Encode() {
	codec, _ := cookie.NewCodec(cookie.Options{MaxAge: time.Hour})
	ck, _ := codec.Encode("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	fmt.Println(ck.SameSite == http.SameSiteNoneMode, ck.HttpOnly, ck.Secure, ck.Partitioned)
	// Output: true true true true
}
