package http

import (
	"net/http"

	"github.com/linkpulse/notifyhub/internal/domain/presence"
	"github.com/linkpulse/notifyhub/internal/handler/http/response"
	"github.com/linkpulse/notifyhub/internal/pkg/validator"
)

// PresenceDirectory answers batched presence lookups
type PresenceDirectory interface {
	Statuses(userIDs []string) []presence.UserStatus
}

type PresenceHandler interface {
	Status(w http.ResponseWriter, r *http.Request)
}

type presenceHandlerImpl struct {
	directory PresenceDirectory
}

func NewPresenceHandler(directory PresenceDirectory) PresenceHandler {
	return &presenceHandlerImpl{directory: directory}
}

// Status reports which of the requested users are connected
func (h *presenceHandlerImpl) Status(w http.ResponseWriter, r *http.Request) {
	req := presence.OnlineStatusRequest{UserIDs: validator.SplitCSV(r.URL.Query().Get("user_ids"))}
	if err := validator.Struct(req); err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, presence.OnlineStatusResponse{Statuses: h.directory.Statuses(req.UserIDs)})
}
