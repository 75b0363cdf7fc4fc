package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// LiveKitConnector adapts the LiveKit SDK to the Connector interface.
type LiveKitConnector struct{}

func NewLiveKitConnector() *LiveKitConnector {
	return &LiveKitConnector{}
}

func (c *LiveKitConnector) Connect(ctx context.Context, serverURL, token string, ev Events) (MediaRoom, error) {
	cb := &lksdk.RoomCallback{
		OnDisconnectedWithReason: func(reason lksdk.DisconnectionReason) {
			if ev.OnDisconnected != nil {
				ev.OnDisconnected(fmt.Sprintf("%v", reason))
			}
		},
		ParticipantCallback: lksdk.ParticipantCallback{},
	}
	if ev.OnParticipantDisconnected != nil {
		cb.OnParticipantDisconnected = func(rp *lksdk.RemoteParticipant) {
			ev.OnParticipantDisconnected(rp.Identity())
		}
	}
	// The Go SDK's RoomCallback has no encryption or media-devices hooks;
	// ev.OnEncryptionError and ev.OnMediaDevicesError stay unwired here and
	// only fire from connectors whose SDK surfaces those failures.

	room, err := lksdk.ConnectToRoomWithToken(serverURL, token, cb, lksdk.WithAutoSubscribe(true))
	if err != nil {
		return nil, err
	}

	// The SDK's connect call resolves once the room is joined, so this is the
	// "connected" transition.
	if ev.OnConnected != nil {
		ev.OnConnected()
	}
	return &liveKitRoom{room: room}, nil
}

// liveKitRoom wraps one SDK room connection. Microphone and camera state is
// modeled as published local tracks.
type liveKitRoom struct {
	room *lksdk.Room

	mu        sync.Mutex
	micPub    *lksdk.LocalTrackPublication
	cameraPub *lksdk.LocalTrackPublication
}

func (r *liveKitRoom) Disconnect() {
	r.room.Disconnect()
}

func (r *liveKitRoom) EnableMicrophone(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.micPub != nil {
		return nil
	}

	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	})
	if err != nil {
		return err
	}
	pub, err := r.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "microphone",
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		return err
	}
	r.micPub = pub
	log.Debug().Str("module", "session").Str("room", r.room.Name()).Msg("microphone track published")
	return nil
}

func (r *liveKitRoom) EnableCamera(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cameraPub != nil {
		return nil
	}

	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
	})
	if err != nil {
		return err
	}
	pub, err := r.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "camera",
		Source: livekit.TrackSource_CAMERA,
	})
	if err != nil {
		return err
	}
	r.cameraPub = pub
	log.Debug().Str("module", "session").Str("room", r.room.Name()).Msg("camera track published")
	return nil
}
