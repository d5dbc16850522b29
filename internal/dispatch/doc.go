// Package dispatch routes inbound live-feed frames to handlers by message type.
//
// Every frame is a JSON object with a "type" and a "payload" field. Handlers
// registered for the generic "message" category see every frame; handlers
// registered for a type see only frames of that type. Both run synchronously
// in registration order, and a failing handler never stops the others.
//
// Frames that cannot be parsed are dropped and counted:
//
//	d := dispatch.New(logger)
//	d.On("new_comment", comments.Handle)
//	d.On(dispatch.CategoryMessage, archiver.Handle)
//	connector := connection.NewConnector(cfg, logger, connection.WithFrameHandler(d))
package dispatch
