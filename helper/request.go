package helper

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
)

// ContentTypeJSON is the content type of every JSON body the gateway writes.
const ContentTypeJSON = "application/json; charset=utf-8"

// Get8BytesHash returns a short fingerprint of value, safe to log.
func Get8BytesHash(value string) string {
	h := sha256.Sum256([]byte(value))

	return hex.EncodeToString(h[:8])
}

// GetHash returns the hex SHA-256 of value.
func GetHash(value string) string {
	h := sha256.Sum256([]byte(value))

	return hex.EncodeToString(h[:])
}

func JSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(data)
}
