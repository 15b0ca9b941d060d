package api

import (
	"encoding/json"

	"github.com/leafsii/sqlkv/pkg/kv"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Request bodies

type GetRequest struct {
	Key kv.Key `json:"key"`
}

type SetRequest struct {
	Key   kv.Key          `json:"key"`
	Value json.RawMessage `json:"value"`
	EX    *int64          `json:"ex,omitempty"`
	NX    bool            `json:"nx,omitempty"`
	Get   bool            `json:"get,omitempty"`
}

type DelRequest struct {
	Key kv.Key `json:"key"`
	Get bool   `json:"get,omitempty"`
}

type ListRequest struct {
	Prefix    kv.Key `json:"prefix"`
	Offset    int    `json:"offset,omitempty"`
	Limit     int    `json:"limit"`
	SortTrait string `json:"sortTrait,omitempty"` // "key", "created_at", "updated_at"
	Order     string `json:"order,omitempty"`     // "asc", "desc"
}

// Response bodies

// ResultResponse mirrors kv.Result. Only the key is set when no record exists;
// a present record always carries expiresAt, which is -1 when it never expires.
type ResultResponse struct {
	Key       kv.Key          `json:"key"`
	Value     json.RawMessage `json:"value,omitempty"`
	CreatedAt *int64          `json:"createdAt,omitempty"`
	UpdatedAt *int64          `json:"updatedAt,omitempty"`
	ExpiresAt *int64          `json:"expiresAt,omitempty"`
}

type ListResponse struct {
	Results []ResultResponse `json:"results"`
}

func NewResultResponse(r kv.Result) ResultResponse {
	resp := ResultResponse{Key: r.Key}
	if !r.Present() {
		return resp
	}
	createdAt, updatedAt, expiresAt := r.CreatedAt, r.UpdatedAt, r.ExpiresAt
	resp.Value = r.Value
	resp.CreatedAt = &createdAt
	resp.UpdatedAt = &updatedAt
	resp.ExpiresAt = &expiresAt
	return resp
}
