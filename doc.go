/*
Package stageflow drives multi-stage, LLM-mediated conversations over a directed stage graph.

A stage graph declares where a conversation can be (START, NORMAL, END and GLOBAL
stages) and which transitions are allowed. On each turn the engine renders the
instruction prompt of the active stage, asks a Decider for a reply and a proposed
next stage, checks the proposal against the graph and applies it. The Decider is
an opaque collaborator: an LLM, a scripted replay, or a heuristic.

# Key Features

  - Validated graphs: every configuration problem is reported at load time as a *domain.ConfigError.
  - GLOBAL stages: reachable from every other stage through synthetic edges.
  - Safe transitions: proposals outside the allowed edges are replaced, never followed.
  - Graceful failure: decider errors and timeouts end the conversation with an apology.
  - Serialized turns: at most one turn per conversation runs at a time, optionally across replicas.

# Usage

	eng, err := stageflow.New("./stages",
		stageflow.WithDecider(decider.NewKeyword()),
		stageflow.WithVariables(map[string]any{"customer": "Ada"}),
	)
	if err != nil {
		log.Fatal(err)
	}

	sess, err := eng.Converse(ctx, "conversation-1", "hello")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(sess.LastAssistantMessage(), sess.ActiveStageID)

The default loader reads a Loam directory of markdown files whose frontmatter
declares the stage type and edges and whose body is the prompt. Use WithLoader
or WithStages for other sources.
*/
package stageflow
