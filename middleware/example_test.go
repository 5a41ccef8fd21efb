package middleware_test

import (
	"fmt"
	"net/http"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/cookie"
	"github.com/MrEthical07/crossauth/middleware"
)

// ExampleRequireSession guards a net/http handler.
func ExampleRequireSession() {
	var manager *crossauth.Manager
	codec, _ := cookie.NewCodec(cookie.Options{})

	mux := http.NewServeMux()
	mux.Handle("GET /protected", middleware.RequireSession(manager, codec)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _ := middleware.UserFromContext(r.Context())
			fmt.Fprintln(w, user.Email)
		}),
	))
}
