// Package pipeline runs a fixed, strictly linear chain of agents.
//
// The artifact starts as the user goal. Each stage renders its template with
// the current artifact, asks its agent to respond, and the reply becomes the
// next artifact. A stage only ever sees the artifact of the stage right before
// it; the goal itself is visible to the first stage only. A failed stage ends
// the run and nothing partial is returned.
package pipeline
