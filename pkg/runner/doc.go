/*
Package runner implements the interactive loop around a conversation engine.

It reads user utterances through a pluggable IOHandler, submits each one as a
turn and prints the assistant reply until the conversation ends.

# Key Components

  - Runner: resumes or starts a conversation and loops over turns.
  - IOHandler: decouples how input and replies travel (text, JSON lines).
  - TextHandler: the interactive CLI implementation.
  - SanitizeInput: size and control-character checks on user text.

# Usage

	r := runner.NewRunner(
		runner.WithConversationID("user-1"),
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
		runner.WithSignals(true),
	)

	if _, err := r.Run(ctx, engine); err != nil {
		log.Fatal(err)
	}
*/
package runner
