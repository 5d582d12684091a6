package notify

import "net/http"

func httpHandlerFunc(hub *Hub) http.HandlerFunc {
	return hub.ServeWS
}
