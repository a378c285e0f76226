// Package intake implements self-service intake links and the submission lifecycle.
//
// A link is a capability: a public token embedded in a URL plus an access code relayed
// out-of-band. While its derived status is active, an external party may submit onboarding
// data up to MaxUses times. Staff review each submission exactly once; approval promotes the
// submitted data into a client record.
//
// Concurrency contract:
//   - CurrentUses is only written by Store.ConsumeAndCreateSubmission, which performs the
//     read-check-increment and the submission insert as one atomic step.
//   - Review transitions are conditional on status = pending and therefore one-shot.
package intake
