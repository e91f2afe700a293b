package api

// Map is a convenience type for map[string]any
type Map map[string]any

// Pagination describes one page of a journal listing
type Pagination struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// ApiResponseMeta carries the instance and paging of a response
type ApiResponseMeta struct {
	Instance   string      `json:"instance,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// ApiError is the error member of a failed response
type ApiError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// ApiResponse is the envelope of every query API reply
type ApiResponse struct {
	Success bool             `json:"success"`
	Data    any              `json:"data,omitempty"`
	Error   *ApiError        `json:"error,omitempty"`
	Meta    *ApiResponseMeta `json:"meta,omitempty"`
}
