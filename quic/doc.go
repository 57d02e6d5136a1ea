// Package quic carries datagram and stream traffic to a relay proxy.
//
// A Client wraps one lazily dialed path. SendMessage performs a single
// round trip: one datagram out, one reply back. For longer exchanges,
// OpenControlledStream opens a stream the remote can push messages on:
//
//	client, err := quic.New(quic.Config{Dialer: dialer})
//	if err != nil {
//		return err
//	}
//	stream, err := client.OpenControlledStream(ctx, baseURL, headers)
//	if err != nil {
//		return err
//	}
//	go func() {
//		for ev := range stream.Events() {
//			if ev.Err != nil {
//				// stream failed
//				return
//			}
//			handle(ev.Data)
//		}
//	}()
//	err = client.WriteMessageOnStream(ctx, payload)
//
// The wire itself lives behind the Dialer, Conn, and StreamConn
// interfaces, so transports and tests plug in without touching the
// client.
package quic
