// Package livekit connects a session to a LiveKit room, exposing the chat
// data channel and subscribed remote video tracks to the orchestration
// layer.
package livekit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
)

// ErrNoVideoTrack is returned by AwaitVideoTrack when the wait deadline
// passes before a remote video track is subscribed.
var ErrNoVideoTrack = errors.New("no video track available")

type Room struct {
	url       string
	apiKey    string
	apiSecret string
	token     string
	roomName  string
	identity  string

	room *lksdk.Room

	onChatMessage func(text, sender string)

	videoTracks chan *VideoTrack

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
}

type RoomOption func(*Room)

func WithAPIKey(apiKey, apiSecret string) RoomOption {
	return func(r *Room) {
		r.apiKey = apiKey
		r.apiSecret = apiSecret
	}
}

// WithToken uses a pre-minted access token instead of an API key pair. The
// room name and identity are embedded in the token.
func WithToken(token string) RoomOption {
	return func(r *Room) { r.token = token }
}

func WithIdentity(identity string) RoomOption {
	return func(r *Room) { r.identity = identity }
}

// NewRoom prepares a room connection to url. Nothing happens until Connect.
func NewRoom(url, roomName string, opts ...RoomOption) *Room {
	room := &Room{
		url:         url,
		roomName:    roomName,
		videoTracks: make(chan *VideoTrack, 4),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(room)
	}

	if room.identity == "" {
		room.identity = "agent-" + uuid.NewString()[:8]
	}

	return room
}

// OnChatMessage registers the handler for text messages arriving on the
// room's data channel. It must be called before Connect.
func (r *Room) OnChatMessage(handler func(text, sender string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChatMessage = handler
}

// Connect joins the room and starts receiving tracks and data packets.
func (r *Room) Connect(ctx context.Context) error {
	_, span := tracer.Start(ctx, "connect to room")
	defer span.End()

	callback := &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed:   r.handleTrackSubscribed,
			OnTrackUnsubscribed: r.handleTrackUnsubscribed,
			OnDataPacket:        r.handleDataPacket,
		},
		OnDisconnected: func() {
			logger.Info("Disconnected from room", "room", r.roomName)
			r.Close()
		},
		OnReconnecting: func() {
			logger.Info("Reconnecting to room", "room", r.roomName)
		},
		OnReconnected: func() {
			logger.Info("Reconnected to room", "room", r.roomName)
		},
	}

	connectOpts := []lksdk.ConnectOption{lksdk.WithAutoSubscribe(true)}

	var room *lksdk.Room
	var err error
	switch {
	case r.token != "":
		room, err = lksdk.ConnectToRoomWithToken(r.url, r.token, callback, connectOpts...)

	case r.apiKey != "" && r.apiSecret != "":
		room, err = lksdk.ConnectToRoom(r.url, lksdk.ConnectInfo{
			APIKey:              r.apiKey,
			APISecret:           r.apiSecret,
			RoomName:            r.roomName,
			ParticipantIdentity: r.identity,
			ParticipantKind:     lksdk.ParticipantAgent,
		}, callback, connectOpts...)

	default:
		return fmt.Errorf("missing credentials: either a token or an API key pair is required")
	}
	if err != nil {
		return fmt.Errorf("failed to connect to room: %w", err)
	}

	r.mu.Lock()
	r.room = room
	r.mu.Unlock()

	logger.Info("Connected to room", "room", r.roomName, "identity", r.identity)
	return nil
}

func (r *Room) handleTrackSubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeVideo {
		return
	}

	logger.Info("Subscribed to video track",
		"track", track.ID(),
		"codec", track.Codec().MimeType,
		"participant", rp.Identity(),
	)

	select {
	case r.videoTracks <- newVideoTrack(track, rp.Identity()):
	case <-r.done:
	default:
		logger.Warn("Dropping video track, queue full", "track", track.ID())
	}
}

func (r *Room) handleTrackUnsubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeVideo {
		return
	}
	logger.Info("Video track unsubscribed", "track", track.ID(), "participant", rp.Identity())
}

func (r *Room) handleDataPacket(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
	payload := data.ToProto().GetUser().GetPayload()
	if len(payload) == 0 {
		return
	}

	r.mu.RLock()
	handler := r.onChatMessage
	r.mu.RUnlock()

	if handler != nil {
		handler(string(payload), params.SenderIdentity)
	}
}

// AwaitVideoTrack blocks until a remote video track is subscribed, the
// context expires, or the room closes.
func (r *Room) AwaitVideoTrack(ctx context.Context) (*VideoTrack, error) {
	select {
	case track := <-r.videoTracks:
		return track, nil
	case <-r.done:
		return nil, fmt.Errorf("room closed")
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrNoVideoTrack
		}
		return nil, ctx.Err()
	}
}

// Done is closed when the room disconnects or Close is called.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) Close() {
	r.closeOnce.Do(func() {
		close(r.done)

		r.mu.RLock()
		room := r.room
		r.mu.RUnlock()
		if room != nil {
			room.Disconnect()
		}
	})
}
