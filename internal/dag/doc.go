// Package dag holds the job dependency graph of a workflow run. Nodes are job
// names and an edge from a to b means b needs a. The executor uses the graph
// to find runnable jobs and to propagate skips downstream.
package dag
