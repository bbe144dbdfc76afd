package generate

import (
	"fmt"
	"strings"

	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

// systemPrompt pins the reply format. The decoder tolerates prose and code
// fences around the document anyway; the prompt just makes that rare.
const systemPrompt = `You are a data pipeline planner. Given a description of a data workflow,
design a pipeline: a set of steps with dependencies, a container image to run
it in, and the package requirements it needs.

Reply with a single JSON object and nothing else:

{
  "name": "short-kebab-case-name",
  "description": "one sentence",
  "steps": [
    {
      "id": "snake_case_id",
      "name": "Human Readable Name",
      "description": "what this step does",
      "dependencies": ["ids", "of", "prerequisite", "steps"],
      "type": "source | transform | sink | utility"
    }
  ],
  "image": {"base": "python:3.12-slim", "workdir": "/app", "env": {}},
  "requirements": ["package", "names"],
  "schedule": {"cron": "0 6 * * *", "enabled": false}
}

Steps that ingest data come first and carry no dependencies. Name steps after
what they do (fetch/read for ingestion, store/load for persistence). Omit
"schedule" unless the description asks for a recurring run.`

func generatePrompt(description string) string {
	return fmt.Sprintf("Design a pipeline for the following description:\n\n%s", description)
}

func refinePrompt(p *pipeline.Pipeline, request string) string {
	var b strings.Builder
	b.WriteString("Here is the current pipeline document:\n\n")
	b.WriteString(string(encodePipeline(p)))
	b.WriteString("\n\nApply this change and reply with the full updated document:\n\n")
	b.WriteString(request)
	return b.String()
}
