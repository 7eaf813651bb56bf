// Package catalog loads quiz question sets from disk and scores answers
// against them.
//
// The catalog package implements:
//   - Loading of *.json, *.yaml and *.yml question set files
//   - Validation of sets and of question id uniqueness across sets
//   - Public question payloads with the answer removed
//   - Answer scoring with an optional speed bonus
//
// Core Types:
//
// QuestionSet is one game type: an ordered list of questions. The file name
// without extension is the set id unless the file names one explicitly.
// Manager holds every set found in a directory and answers content lookups
// for the room router. Scorer grades answers using the questions a Manager
// knows about.
//
// File Format:
//
//	id: trivia
//	name: General trivia
//	questions:
//	  - id: capital-fr
//	    text: What is the capital of France?
//	    choices: [Paris, Lyon, Nice]
//	    answer: Paris
//	    points: 100
//	    time_limit_ms: 15000
//
// Scoring:
//
// A correct answer earns the question's points (100 when unset). When the
// question has a time limit, answering early adds up to half the points
// again, scaled linearly by the time left. Answers after the limit and wrong
// answers earn nothing.
package catalog
