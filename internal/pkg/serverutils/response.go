package serverutils

// Response is the standard API envelope.
type Response[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func SuccessResponse[T any](message string, data T) Response[T] {
	return Response[T]{
		Message: message,
		Data:    data,
	}
}

type ErrorBody struct {
	Message string      `json:"message"`
	Errors  interface{} `json:"errors,omitempty"`
}
