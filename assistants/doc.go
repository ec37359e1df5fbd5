// Package assistants drives the conversation loop between the language model
// and the tool providers: it sends the growing message history together with
// the merged capability list, executes the tool-use requests the model emits,
// folds their results back into the history and repeats until the model
// produces a final text answer or the turn ceiling is reached.
package assistants
