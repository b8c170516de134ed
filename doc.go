// Package prefs implements typed, observable preferences over a key/value
// kvstore.Store.
//
// A Preference binds a key, a default value, and an Adapter which encodes
// values of the Preference's type into the Store. Its Value is the decoded
// stored value if the key exists, and otherwise its default: presence is
// never surfaced to subscribers. Writes and clears are asynchronous, and
// upon completion each publishes its key onto a bus.Bus shared by all
// Preferences of the Store, whether or not the Store mutation succeeded.
//
// Subscribing to a Preference yields a Subscription. The first value of a
// Subscription is always the Preference's Value at the time of Subscribe,
// and is available on the Subscription's channel before Subscribe returns.
// Thereafter, each published change of the key causes the value to be re-read
// and delivered only if it differs from the value last delivered to that
// Subscription. Subscriptions are independent: each has its own bus.Listener
// and its own cursor of the last delivered value, and a Subscription which is
// cancelled and re-created starts over from its first value.
//
// Preferences is the entry point for most applications. It owns the change
// Bus of a Store and builds Preferences of common types:
//
//	var p = prefs.New(store)
//	var volume = p.Int("volume", 5)
//
//	var sub = volume.Subscribe()
//	defer sub.Cancel()
//
//	_ = volume.Write(ctx, 11).Err()
//	fmt.Println(<-sub.C(), <-sub.C()) // 5 11
package prefs
