package types

type CreateWidgetRequest struct {
	Name           string `json:"name"`
	IdempotencyKey string `header:"Idempotency-Key,optional"`
}

type GetWidgetRequest struct {
	ID string `path:"id"`
}

type WidgetResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version uint64 `json:"version"`
}
