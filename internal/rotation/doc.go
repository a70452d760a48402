// Package rotation drives the playback state machine.
//
// An Engine binds one held item to the fixed playback path (NowPlaying),
// prefetches a successor (UpNext) once playback passes a progress threshold,
// and swaps the successor in when the current item is about to end. The
// engine refers to held items by identifier only; the content store owns
// every file. Slot bindings, history, and counters are persisted as JSON so a
// restarted process can resume the current item.
package rotation
