package server

import (
	"encoding/json"
	"net/http"

	"github.com/cryptolatam/cashout/withdraw"
)

// APIError is the standard error response envelope.
type APIError struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Refunded bool   `json:"refunded,omitempty"`
}

func writeError(w http.ResponseWriter, code int, codeStr withdraw.Code, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(APIError{
		Error: errMsg,
		Code:  string(codeStr),
	})
}

// writeEngineError maps an engine error to its HTTP status and envelope.
func writeEngineError(w http.ResponseWriter, err error) {
	e, ok := withdraw.AsError(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, "", "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(e.Code))
	_ = json.NewEncoder(w).Encode(APIError{
		Error:    e.Message,
		Code:     string(e.Code),
		Refunded: e.Refunded,
	})
}

func httpStatus(code withdraw.Code) int {
	switch code {
	case withdraw.CodeValidation:
		return http.StatusBadRequest
	case withdraw.CodeUnauthorized:
		return http.StatusUnauthorized
	case withdraw.CodeInsufficientBalance:
		return http.StatusPaymentRequired
	case withdraw.CodeNotFound:
		return http.StatusNotFound
	case withdraw.CodeOperationFailed:
		return http.StatusConflict
	case withdraw.CodeRateLimited:
		return http.StatusTooManyRequests
	case withdraw.CodeSettlementUnavailable:
		return http.StatusBadGateway
	case withdraw.CodeMaintenance:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
