// Command goviz renders Graphviz graphs from the command line, an
// interactive prompt or an HTTP server.
package main

func main() {
	Execute()
}
