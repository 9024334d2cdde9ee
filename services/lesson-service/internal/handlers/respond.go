package handlers

import (
	"encoding/json"
	"net/http"
)

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{Success: true, Data: data})
}

// writeError emits the standard error envelope: a machine-readable code plus
// a localized, human-readable message.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

const (
	msgLessonNotFound = "Lekcja nie została znaleziona"
	msgForbidden      = "Brak uprawnień do wykonania tej operacji"
	msgInvalidStatus  = "Nieprawidłowa zmiana statusu lekcji"
	msgInvalidBody    = "Nieprawidłowe dane żądania"
	msgServerError    = "Wystąpił błąd serwera"
	msgUnauthorized   = "Wymagane uwierzytelnienie"
)
