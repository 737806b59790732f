package channeld

import "time"

// Config carries the operator-tunable knobs the master supplies at process
// start. Everything here is a bound or a pace the core enforces; none of it
// is a policy decision the core makes on its own (those stay with the
// master, per the non-goals).
type Config struct {
	// CommitInterval is commit_msec from the spec: how long the commit
	// timer waits, once armed, before send_commit fires.
	CommitInterval time.Duration `long:"commit-interval" description:"time to wait before sending a new commitment after a change is staged" default:"10ms"`

	// LivenessTimeout is the 30s peer-inactivity window that gates
	// outbound commits and prompts an opportunistic ping. The spec
	// calls this "magic"; it is configuration here per its Open
	// Question (c).
	LivenessTimeout time.Duration `long:"liveness-timeout" description:"how long without a message from the peer before a commit is deferred and a ping is sent" default:"30s"`

	// FeerateMin and FeerateMax bound any update_fee this side will
	// send or accept, in sat/kw. The master owns the actual policy; the
	// core only enforces the band.
	FeerateMin uint32 `long:"feerate-min" description:"minimum acceptable feerate in sat/kw"`
	FeerateMax uint32 `long:"feerate-max" description:"maximum acceptable feerate in sat/kw"`

	// MaxPrematureMessages bounds how many messages received before
	// channel_reestablish completes are stashed and replayed, per spec
	// §4.4. Only kinds outside allowedBeforeReestablish are stashed;
	// funding_locked and announcement_signatures are on that allowlist,
	// so they are handled at once and never stashed or counted.
	MaxPrematureMessages int `long:"max-premature-messages" description:"number of pre-reestablish messages tolerated before the channel is failed" default:"10"`

	// MaxEmptyCommitRetries bounds how many times in a row send_commit
	// may abort because the previous commitment hasn't been revoked
	// before it logs once, per spec §4.3 step 1.
	MaxEmptyCommitRetries int `long:"max-commit-retries" description:"consecutive blocked send_commit attempts tolerated before logging" default:"100"`
}

// DefaultConfig returns the configuration used when the master doesn't
// override a value.
func DefaultConfig() *Config {
	return &Config{
		CommitInterval:        10 * time.Millisecond,
		LivenessTimeout:       30 * time.Second,
		MaxPrematureMessages:  10,
		MaxEmptyCommitRetries: 100,
	}
}
