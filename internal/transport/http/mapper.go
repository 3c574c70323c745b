package http

import (
	"encoding/json"

	"github.com/vovakirdan/sugarchat/internal/core"
	"github.com/vovakirdan/sugarchat/internal/proto"
)

const errCodeInvalidMessage = "invalid_message"

func badRequest(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

// inboundToCommand maps a client envelope to a hub command. A non-nil
// *proto.Error is reported to the client; a non-nil error drops the
// connection.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	cmd := &core.Command{ReqID: inbound.ReqID}

	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeClose, proto.InboundTypeGroupInfo, proto.InboundTypeMembers:
		var data proto.ChannelData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Channel == "" {
			return nil, badRequest("channel is required"), nil
		}
		cmd.Channel = data.Channel
		switch inbound.Type {
		case proto.InboundTypeJoin:
			cmd.Kind = core.CommandJoin
		case proto.InboundTypeClose:
			cmd.Kind = core.CommandClose
		case proto.InboundTypeGroupInfo:
			cmd.Kind = core.CommandGroupInfo
		default:
			cmd.Kind = core.CommandMembers
		}
	case proto.InboundTypeOpen, proto.InboundTypeBuddy:
		var data proto.OpenData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Handle == 0 {
			return nil, badRequest("handle is required"), nil
		}
		cmd.Peer = data.Handle
		cmd.Kind = core.CommandOpen
		if inbound.Type == proto.InboundTypeBuddy {
			cmd.Kind = core.CommandBuddy
		}
	case proto.InboundTypeSend:
		var data proto.SendData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Channel == "" {
			return nil, badRequest("channel is required"), nil
		}
		cmd.Kind = core.CommandSend
		cmd.Channel = data.Channel
		cmd.Type = data.Type
		cmd.Text = data.Text
	case proto.InboundTypeListPending:
		var data proto.ListPendingData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Channel == "" {
			return nil, badRequest("channel is required"), nil
		}
		cmd.Kind = core.CommandListPending
		cmd.Channel = data.Channel
		cmd.Clear = data.Clear
	case proto.InboundTypeAck:
		var data proto.AckData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.Channel == "" {
			return nil, badRequest("channel is required"), nil
		}
		cmd.Kind = core.CommandAck
		cmd.Channel = data.Channel
		cmd.IDs = data.IDs
	case proto.InboundTypeAliases, proto.InboundTypeHandleOwners:
		var data proto.HandlesData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		cmd.Handles = data.Handles
		cmd.Kind = core.CommandAliases
		if inbound.Type == proto.InboundTypeHandleOwners {
			if data.Channel == "" {
				return nil, badRequest("channel is required"), nil
			}
			cmd.Kind = core.CommandHandleOwners
			cmd.Channel = data.Channel
		}
	case proto.InboundTypeSelf:
		cmd.Kind = core.CommandSelf
	case proto.InboundTypeHello:
		return nil, badRequest("already introduced"), nil
	default:
		return nil, &proto.Error{Code: errCodeInvalidMessage, Msg: "unknown message type"}, nil
	}
	return cmd, nil, nil
}

func buddyOut(b core.BuddyInfo) proto.Buddy {
	return proto.Buddy{Handle: b.Handle, Nick: b.Nick, Color: b.Color}
}

func membersOut(ms []core.Member) []proto.Member {
	if ms == nil {
		return nil
	}
	out := make([]proto.Member, 0, len(ms))
	for _, m := range ms {
		out = append(out, proto.Member{Handle: m.Handle, Owner: m.Owner, Nick: m.Nick, Color: m.Color})
	}
	return out
}

func pendingOut(p core.Pending) proto.PendingMessage {
	return proto.PendingMessage{
		ID:        p.ID,
		Timestamp: p.Timestamp.Unix(),
		Sender:    p.Sender,
		Type:      p.Type,
		Flags:     p.Flags,
		Text:      p.Text,
	}
}

func channelInfoOut(info *core.ChannelInfo) proto.ChannelInfo {
	out := proto.ChannelInfo{
		Channel:    info.Name,
		Kind:       string(info.Kind),
		SelfHandle: info.SelfHandle,
		Flags:      info.Flags,
		Members:    membersOut(info.Members),
	}
	if info.Peer != nil {
		peer := buddyOut(*info.Peer)
		out.Peer = &peer
	}
	return out
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventResponse:
		return proto.Outbound{Type: proto.OutboundTypeResponse, ReqID: event.ReqID, Data: responseData(event)}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, ReqID: event.ReqID, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			ReqID: event.ReqID,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	case core.EventReceived:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventReceived,
			Data:  proto.EventReceivedData{Channel: event.Channel, Message: pendingOut(*event.Message)},
		}
	case core.EventClosed:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventClosed,
			Data:  proto.EventClosedData{Channel: event.Channel},
		}
	case core.EventMembersChanged:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMembersChanged,
			Data: proto.EventMembersChangedData{
				Channel: event.Channel,
				Added:   membersOut(event.Added),
				Removed: membersOut(event.Removed),
			},
		}
	case core.EventChannelOpened:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventChannelOpened,
			Data:  channelInfoOut(event.Info),
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func responseData(event *core.Event) any {
	switch event.Op {
	case core.CommandJoin, core.CommandOpen:
		if event.Info != nil {
			return channelInfoOut(event.Info)
		}
	case core.CommandListPending:
		msgs := make([]proto.PendingMessage, 0, len(event.Pending))
		for _, p := range event.Pending {
			msgs = append(msgs, pendingOut(p))
		}
		return proto.PendingList{Messages: msgs}
	case core.CommandAliases:
		return proto.Aliases{Aliases: event.Aliases}
	case core.CommandHandleOwners:
		return proto.Handles{Handles: event.Handles}
	case core.CommandGroupInfo:
		if event.Group != nil {
			return proto.GroupInfo{SelfHandle: event.Group.SelfHandle, Flags: event.Group.Flags}
		}
	case core.CommandMembers:
		return proto.Members{Members: membersOut(event.Members)}
	case core.CommandBuddy, core.CommandSelf:
		if event.Buddy != nil {
			return buddyOut(*event.Buddy)
		}
	}
	return nil
}
