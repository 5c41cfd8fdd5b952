// Package notify fans one operational event out to every channel subscribed to it.
//
// Flow per event:
//
//	SubscriptionStore.ListChannelsForEvent -> Composer.Compose (once)
//	  -> per channel, concurrently: Formatter.Format -> Transport.Send
//	  -> DispatchResult (one DispatchOutcome per selected channel)
//
// A channel attempt never affects its siblings: format, render, transport, timeout
// and panic failures all become a Failed outcome. The only error Dispatch returns
// is a failure to read the subscription store.
package notify
