package dto

import (
	"bytes"
	"encoding/json"
	"errors"
)

// PlaceRequest é o corpo de POST /betbot/place
type PlaceRequest struct {
	TwitchName string `json:"twitch_name"`
	Target     Target `json:"target"`
	Amount     *int64 `json:"amount"`
}

// RestartRequest é o corpo opcional de POST /betbot/restart; timeout em segundos
type RestartRequest struct {
	Timeout int `json:"timeout"`
}

// PointsResponse é a resposta de GET /users/{twitch_name}/points
type PointsResponse struct {
	TwitchName string `json:"twitch_name"`
	Points     int64  `json:"points"`
	Allocated  int64  `json:"allocated"`
	Available  int64  `json:"available"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Target aceita o id do time como string ou número, o bot manda dos dois jeitos
type Target string

func (t *Target) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return errors.New("target required")
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Target(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = Target(n.String())
	return nil
}
