package geometry

import "math"

// PolarLine computes the polar equation of the line through p1 and p2.
// Theta is the tangent direction of the line folded into [-pi/2, pi/2),
// rho the distance of the infinite line from the origin, and length the
// Euclidean length of the segment. Coincident points are under-determined;
// theta is 0 by convention in that case.
func PolarLine(p1, p2 PointInt) (theta, rho, length float64) {
	dx := float64(p2.X - p1.X)
	dy := float64(p2.Y - p1.Y)
	length = math.Sqrt(dx*dx + dy*dy)
	if length == 0 {
		return 0, math.Sqrt(float64(p1.X*p1.X + p1.Y*p1.Y)), 0
	}

	theta = math.Atan2(dy, dx)
	// Fold the direction into [-pi/2, pi/2): a line has no canonical direction.
	if theta >= math.Pi/2 {
		theta -= math.Pi
	} else if theta < -math.Pi/2 {
		theta += math.Pi
	}

	// Normal form: rho = x*cos(n) + y*sin(n) with n perpendicular to the line.
	normal := theta + math.Pi/2
	rho = math.Abs(float64(p1.X)*math.Cos(normal) + float64(p1.Y)*math.Sin(normal))
	return theta, rho, length
}

// MinAngleError returns the minimal circular difference between two
// orientations, in [0, pi]. When undirected is true the result is folded
// into [0, pi/2], treating a and a+pi as the same orientation.
func MinAngleError(a, b float64, undirected bool) float64 {
	d := math.Mod(a-b, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d < -math.Pi {
		d += 2 * math.Pi
	}
	d = math.Abs(d)

	if undirected && d > math.Pi/2 {
		d = math.Pi - d
	}
	return d
}

// RasterizeLine walks the 8-connected Bresenham raster from p1 to p2,
// inclusive of both endpoints.
func RasterizeLine(p1, p2 PointInt) []PointInt {
	dx := absInt(p2.X - p1.X)
	dy := absInt(p2.Y - p1.Y)
	sx := 1
	if p1.X > p2.X {
		sx = -1
	}
	sy := 1
	if p1.Y > p2.Y {
		sy = -1
	}

	pts := make([]PointInt, 0, maxInt(dx, dy)+1)
	x, y := p1.X, p1.Y
	errAcc := dx - dy
	for {
		pts = append(pts, PointInt{X: x, Y: y})
		if x == p2.X && y == p2.Y {
			break
		}
		e2 := 2 * errAcc
		if e2 > -dy {
			errAcc -= dy
			x += sx
		}
		if e2 < dx {
			errAcc += dx
			y += sy
		}
	}
	return pts
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
