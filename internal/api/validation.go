package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/MJE43/craps-pf-go/internal/games"
)

// ValidateVerifyRequest validates a verify request
func ValidateVerifyRequest(req *VerifyRequest) error {
	if req.Game == "" {
		return fmt.Errorf("game is required")
	}
	if _, exists := games.GetGame(req.Game); !exists {
		return fmt.Errorf("game '%s' not found", req.Game)
	}
	if req.Seeds.Server == "" {
		return fmt.Errorf("server seed is required")
	}
	if req.Seeds.Client == "" {
		return fmt.Errorf("client seed is required")
	}
	if req.Nonce == 0 {
		return fmt.Errorf("nonce must be >= 1")
	}
	if v, ok := req.Params["max_settle"]; ok {
		f, ok := v.(float64)
		if !ok || f <= 0 || f > 120 {
			return fmt.Errorf("max_settle must be a number of seconds in (0, 120]")
		}
	}
	return nil
}

// queryInt reads an integer query parameter, returning def when absent.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return v, nil
}
