package main

import "airbnb_insights/internal/cli"

func main() { cli.Execute() }
