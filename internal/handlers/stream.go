package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/sshbridge/sshbridge/internal/config"
	"github.com/sshbridge/sshbridge/internal/intents"
	"github.com/sshbridge/sshbridge/internal/middleware"
)

// streamFrame is one intent sent by a chat gateway over the WebSocket. Data
// is base64 (standard encoding/json []byte handling) and carries file
// content for submit_file.
type streamFrame struct {
	Intent string `json:"intent"`
	Method string `json:"method,omitempty"`
	Text   string `json:"text,omitempty"`
	Path   string `json:"path,omitempty"`
	Name   string `json:"name,omitempty"`
	Data   []byte `json:"data,omitempty"`
}

// Stream serves a long-lived WebSocket carrying JSON intent frames for one
// user. Each frame gets exactly one result frame in reply, in order; intents
// for a user run sequentially so dialogue turns cannot interleave.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[stream] accept websocket for user %d: %v", userID, err)
		return
	}
	defer conn.CloseNow()

	conn.SetReadLimit(config.Cfg.MaxFileSize + 1024*1024)
	ctx := r.Context()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var frame streamFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			a.writeFrame(ctx, conn, intents.Result{Text: "invalid frame"})
			continue
		}
		a.writeFrame(ctx, conn, a.dispatch(ctx, userID, frame))
	}
}

func (a *API) dispatch(ctx context.Context, userID int64, frame streamFrame) intents.Result {
	switch frame.Intent {
	case "connect":
		return a.Intents.Connect(userID, frame.Method)
	case "cancel":
		return a.Intents.CancelDialogue(userID)
	case "submit_text":
		return a.Intents.SubmitText(ctx, userID, frame.Text)
	case "submit_file":
		return a.Intents.SubmitFile(ctx, userID, frame.Data, frame.Name)
	case "execute":
		return a.Intents.ExecuteCommand(ctx, userID, frame.Text)
	case "disconnect":
		return a.Intents.Disconnect(userID)
	case "status":
		return a.Intents.Status(userID)
	case "list_files":
		return a.Intents.ListFiles(ctx, userID)
	case "upload":
		return a.Intents.UploadTo(ctx, userID, frame.Data, frame.Path)
	case "download":
		return a.Intents.DownloadFrom(ctx, userID, frame.Path)
	case "monitor":
		return a.Intents.Monitor(ctx, userID, frame.Name)
	case "monitors":
		return a.Intents.MonitorNames()
	default:
		return intents.Result{Text: "unknown intent: " + frame.Intent}
	}
}

func (a *API) writeFrame(ctx context.Context, conn *websocket.Conn, res intents.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		log.Printf("[stream] write result: %v", err)
	}
}
