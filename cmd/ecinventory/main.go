// ecinventory - ElastiCache inventory scanner
// Scan every profile and region. Report what changed.
package main

func main() {
	Execute()
}
