package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	// AuthorizationHeader is the header key to get the authorization token
	AuthorizationHeader = "authorization"
	tokenPrefix         = "Bearer "
)

// BearerAuthenticate rejects the requests without the expected token (no check if token is empty)
func BearerAuthenticate(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "" && r.URL.Path != "/" && r.Method != http.MethodOptions {
			if err := authenticate(token, r.Header.Get(AuthorizationHeader)); err != nil {
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(err.Error())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func authenticate(expected, header string) error {
	switch {
	case expected == "":
		return nil // No auth required
	case header == "":
		return fmt.Errorf("token not found")
	case !strings.HasPrefix(header, tokenPrefix):
		return fmt.Errorf(`missing "` + tokenPrefix + `" prefix`)
	case strings.TrimPrefix(header, tokenPrefix) != expected:
		return fmt.Errorf("invalid token")
	}
	return nil
}
