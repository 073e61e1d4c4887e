package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/nullexa/nullexa/internal/chat"
	"github.com/nullexa/nullexa/internal/client"
	"github.com/nullexa/nullexa/internal/peer"
	"github.com/nullexa/nullexa/internal/room"
	"github.com/nullexa/nullexa/internal/signal"
)

const sendTimeout = 10 * time.Second

// ui renders core events with pterm and translates typed commands into core
// calls. It keeps exactly one piece of state: the current chat target (a
// peer or a room).
type ui struct {
	client *client.Client

	targetPeer string
	targetRoom string
}

func newUI() *ui {
	return &ui{}
}

// events wires every core notification to a renderer.
func (u *ui) events() client.Events {
	return client.Events{
		OnReady: func(userID, username string) {
			pterm.Success.Printfln("connected as %s (%s)", username, shortID(userID))
			pterm.Info.Println("type /help for commands")
		},
		OnDirectMessage: func(peerID string, env *chat.Envelope) {
			u.renderMessage(env.Username, env)
		},
		OnRoomMessage: func(roomID string, env *chat.Envelope) {
			u.renderMessage(fmt.Sprintf("%s@%s", env.Username, shortID(roomID)), env)
		},
		OnPeerStatus: func(peerID string, status peer.Status) {
			u.renderStatus(peerID, status)
		},
		OnUserList: func(users []signal.User) {
			pterm.Info.Printfln("%d user(s) online", len(users))
		},
		OnUserConnected: func(userID, username string) {
			pterm.Info.Printfln("%s joined (%s)", username, shortID(userID))
		},
		OnUserDisconnected: func(userID string) {
			pterm.Info.Printfln("%s disconnected", shortID(userID))
		},
		OnUsernameUpdated: func(userID, username string) {
			pterm.Info.Printfln("%s is now known as %s", shortID(userID), username)
		},
		OnRoomCreated: func(r room.Room) {
			pterm.Success.Printfln("room %q created (%s)", r.Name, shortID(r.ID))
		},
		OnRoomAvailable: func(r room.Room) {
			lock := ""
			if r.Protected {
				lock = " [protected]"
			}
			pterm.Info.Printfln("room available: %q (%s)%s", r.Name, shortID(r.ID), lock)
		},
		OnRoomJoined: func(r room.Room) {
			u.targetRoom = r.ID
			u.targetPeer = ""
			pterm.Success.Printfln("joined room %q, %d participant(s)", r.Name, len(r.Participants))
		},
		OnRoomLeft: func(roomID string) {
			if u.targetRoom == roomID {
				u.targetRoom = ""
			}
			pterm.Info.Printfln("left room %s", shortID(roomID))
		},
		OnUserJoinedRoom: func(roomID, userID, username string) {
			pterm.Info.Printfln("%s joined room %s", username, shortID(roomID))
		},
		OnUserLeftRoom: func(roomID, userID string) {
			pterm.Info.Printfln("%s left room %s", shortID(userID), shortID(roomID))
		},
		OnRoomJoinError: func(roomID, reason string) {
			pterm.Error.Printfln("cannot join room %s: %s", shortID(roomID), reason)
		},
		OnTransportLost: func(err error) {
			pterm.Error.Println("coordinator link lost, all chats closed, rooms offline")
		},
	}
}

func (u *ui) renderMessage(from string, env *chat.Envelope) {
	switch env.Kind {
	case chat.KindFile:
		pterm.Printfln("%s %s sent a file: %s (%s) %s",
			pterm.Gray(clock(env.Timestamp)), pterm.Cyan(from),
			env.File.Name, formatSize(env.File.Size), pterm.Gray(env.File.URL))
	default:
		pterm.Printfln("%s %s: %s", pterm.Gray(clock(env.Timestamp)), pterm.Cyan(from), env.Text)
	}
}

func (u *ui) renderStatus(peerID string, status peer.Status) {
	name := u.peerName(peerID)
	switch status {
	case peer.StatusConnected:
		pterm.Success.Printfln("peer %s: connected", name)
	case peer.StatusConnectedNoChannel:
		pterm.Warning.Printfln("peer %s: connected, channel not open yet", name)
	case peer.StatusFailed:
		pterm.Error.Printfln("peer %s: connection failed", name)
	case peer.StatusDisconnected:
		pterm.Warning.Printfln("peer %s: disconnected", name)
	case peer.StatusClosed:
		pterm.Info.Printfln("peer %s: closed", name)
	default:
		pterm.Info.Printfln("peer %s: %s", name, status)
	}
}

// commandLoop reads stdin lines until EOF or ctx cancellation. Plain text
// goes to the current target; /commands steer the client.
func (u *ui) commandLoop(ctx context.Context, stop func()) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if u.handleCommand(ctx, line) {
				stop()
				return
			}
			continue
		}
		u.sendText(ctx, line)
	}
}

// handleCommand executes one /command; returns true to quit.
func (u *ui) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		printHelp()

	case "/users":
		if err := u.client.RefreshUsers(); err != nil {
			pterm.Error.Printfln("refresh failed: %v", err)
		}
		for id, name := range u.client.Roster() {
			pterm.Printfln("  %s  %s  [%s]", shortID(id), name, u.client.PeerStatus(id))
		}

	case "/chat":
		if len(args) < 1 {
			pterm.Warning.Println("usage: /chat <user-id>")
			return false
		}
		peerID := u.resolvePeer(args[0])
		if peerID == "" {
			pterm.Error.Printfln("unknown user %q", args[0])
			return false
		}
		if err := u.client.StartChat(peerID); err != nil {
			pterm.Error.Printfln("cannot start chat: %v", err)
			return false
		}
		u.targetPeer, u.targetRoom = peerID, ""
		pterm.Info.Printfln("chatting with %s", u.peerName(peerID))

	case "/close":
		if u.targetPeer == "" {
			pterm.Warning.Println("no active chat")
			return false
		}
		u.client.CloseChat(u.targetPeer)
		u.targetPeer = ""

	case "/rooms":
		for _, r := range u.client.Rooms() {
			marker := " "
			if r.Joined {
				marker = "*"
			}
			pterm.Printfln("%s %s  %q  %d participant(s)", marker, shortID(r.ID), r.Name, len(r.Participants))
		}

	case "/create":
		if len(args) < 1 {
			pterm.Warning.Println("usage: /create <name> [password]")
			return false
		}
		password := ""
		if len(args) > 1 {
			password = args[1]
		}
		if err := u.client.CreateRoom(args[0], password); err != nil {
			pterm.Error.Printfln("create failed: %v", err)
		}

	case "/join":
		if len(args) < 1 {
			pterm.Warning.Println("usage: /join <room-id> [password]")
			return false
		}
		password := ""
		if len(args) > 1 {
			password = args[1]
		}
		if err := u.client.JoinRoom(args[0], password); err != nil {
			pterm.Error.Printfln("join failed: %v", err)
		}

	case "/leave":
		if u.targetRoom == "" {
			pterm.Warning.Println("not in a room")
			return false
		}
		if err := u.client.LeaveRoom(u.targetRoom); err != nil {
			pterm.Error.Printfln("leave failed: %v", err)
		}

	case "/file":
		if len(args) < 1 {
			pterm.Warning.Println("usage: /file <path>")
			return false
		}
		u.sendFile(ctx, args[0])

	case "/name":
		if len(args) < 1 {
			pterm.Warning.Println("usage: /name <username>")
			return false
		}
		if err := u.client.SetUsername(args[0]); err != nil {
			pterm.Error.Printfln("rename failed: %v", err)
		}

	default:
		pterm.Warning.Printfln("unknown command %s (try /help)", cmd)
	}
	return false
}

func (u *ui) sendText(ctx context.Context, text string) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	switch {
	case u.targetRoom != "":
		env, err := u.client.SendRoomText(u.targetRoom, text)
		if err != nil {
			pterm.Error.Printfln("room send failed: %v", err)
			return
		}
		u.renderMessage("you", env)

	case u.targetPeer != "":
		env, err := u.client.SendDirect(sendCtx, u.targetPeer, text)
		if err != nil {
			if errors.Is(err, peer.ErrChannelUnavailable) {
				pterm.Error.Printfln("cannot send: peer connection not established (status: %s)",
					u.client.PeerStatus(u.targetPeer))
			} else {
				pterm.Error.Printfln("send failed: %v", err)
			}
			return
		}
		u.renderMessage("you", env)

	default:
		pterm.Warning.Println("no chat selected, use /chat <user> or /join <room> first")
	}
}

func (u *ui) sendFile(ctx context.Context, path string) {
	if u.targetPeer == "" && u.targetRoom == "" {
		pterm.Warning.Println("no chat selected, use /chat <user> or /join <room> first")
		return
	}

	spinner, _ := pterm.DefaultSpinner.Start("uploading ", path)
	info, err := u.client.Upload(ctx, path)
	if err != nil {
		spinner.Fail(err.Error())
		return
	}
	spinner.Success("uploaded ", info.Name)

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	var env *chat.Envelope
	if u.targetRoom != "" {
		env, err = u.client.SendRoomFile(u.targetRoom, *info)
	} else {
		env, err = u.client.SendDirectFile(sendCtx, u.targetPeer, *info)
		if errors.Is(err, peer.ErrChannelUnavailable) {
			pterm.Warning.Println("no open channel, sending file reference via coordinator")
			env, err = u.client.SendDirectFileFallback(u.targetPeer, *info)
		}
	}
	if err != nil {
		pterm.Error.Printfln("file send failed: %v", err)
		return
	}
	u.renderMessage("you", env)
}

// resolvePeer accepts a full id, a short id prefix, or a username.
func (u *ui) resolvePeer(arg string) string {
	roster := u.client.Roster()
	if _, ok := roster[arg]; ok {
		return arg
	}
	for id, name := range roster {
		if name == arg || strings.HasPrefix(id, arg) {
			return id
		}
	}
	return ""
}

func (u *ui) peerName(peerID string) string {
	if name, ok := u.client.Roster()[peerID]; ok {
		return name
	}
	return shortID(peerID)
}

func printHelp() {
	pterm.Println(`commands:
  /users                 list online users
  /chat <user>           start a direct chat (id, prefix, or name)
  /close                 close the current direct chat
  /rooms                 list rooms (* marks joined)
  /create <name> [pw]    create a room
  /join <room-id> [pw]   join a room
  /leave                 leave the current room
  /file <path>           upload and send a file
  /name <username>       change display name
  /quit                  exit`)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clock(timestamp string) string {
	t, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return "--:--"
	}
	return t.Local().Format("15:04")
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
